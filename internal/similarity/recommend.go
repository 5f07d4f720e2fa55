package similarity

import (
	"sort"
)

const (
	DefaultMinCommon = 2
	DefaultLimit     = 10
)

// Profile is the note set of one perfume.
type Profile struct {
	ID    int64    `json:"id"`
	Name  string   `json:"name"`
	Brand string   `json:"brand"`
	Notes []string `json:"notes"`
}

// Recommendation is a candidate that shares enough canonical notes with the target.
type Recommendation struct {
	Profile
	CommonNotes []string `json:"commonNotes"`
	CommonCount int      `json:"commonNotesCount"`
}

type RecommendOptions struct {
	MinCommon int
	Limit     int
}

// Recommend ranks candidates by shared canonical notes with target. The
// target itself is skipped, ties keep input order.
func (m *Matcher) Recommend(target Profile, candidates []Profile, opts RecommendOptions) []Recommendation {
	if opts.MinCommon <= 0 {
		opts.MinCommon = DefaultMinCommon
	}
	if opts.Limit <= 0 || opts.Limit > DefaultLimit {
		opts.Limit = DefaultLimit
	}

	recs := []Recommendation{}
	if len(target.Notes) == 0 {
		return recs
	}

	for _, c := range candidates {
		if c.ID == target.ID {
			continue
		}
		res := m.Similarity(target.Notes, c.Notes)
		if res.Count < opts.MinCommon {
			continue
		}
		recs = append(recs, Recommendation{
			Profile:     c,
			CommonNotes: res.Common,
			CommonCount: res.Count,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CommonCount > recs[j].CommonCount
	})

	if len(recs) > opts.Limit {
		recs = recs[:opts.Limit]
	}
	return recs
}
