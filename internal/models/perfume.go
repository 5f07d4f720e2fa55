package models

import (
	"time"
)

// Note layouts detected on a detail page.
const (
	LayoutPyramid = "pyramid"
	LayoutFlat    = "flat"
)

// Record is one scraped perfume detail page.
type Record struct {
	SourceURL    string    `json:"sourceUrl"`
	BrandName    string    `json:"brandName"`
	ScrapedBrand string    `json:"scrapedBrand,omitempty"`
	Title        string    `json:"title"`
	Accords      []Accord  `json:"accords"`
	Notes        Notes     `json:"notes"`
	NoteLayout   string    `json:"noteLayout,omitempty"`
	ScrapedAt    time.Time `json:"scrapedAt"`
}

// Accord is a ranked scent family with its bar width in percent.
// Width is nil when the style attribute could not be parsed.
type Accord struct {
	Name  string   `json:"name"`
	Width *float64 `json:"width"`
}

type Notes struct {
	Top    []string `json:"top"`
	Middle []string `json:"middle"`
	Base   []string `json:"base"`
	Flat   []string `json:"flat"`
}

// NewNotes returns Notes with non-nil empty slices so they encode as [].
func NewNotes() Notes {
	return Notes{
		Top:    []string{},
		Middle: []string{},
		Base:   []string{},
		Flat:   []string{},
	}
}

// Tiered reports whether any of top, middle or base is populated.
func (n Notes) Tiered() bool {
	return len(n.Top) > 0 || len(n.Middle) > 0 || len(n.Base) > 0
}

func (n Notes) IsEmpty() bool {
	return !n.Tiered() && len(n.Flat) == 0
}

// All flattens every tier and the flat list, keeping order and dropping repeats.
func (n Notes) All() []string {
	seen := make(map[string]struct{})
	var all []string
	for _, list := range [][]string{n.Top, n.Middle, n.Base, n.Flat} {
		for _, note := range list {
			if _, ok := seen[note]; ok {
				continue
			}
			seen[note] = struct{}{}
			all = append(all, note)
		}
	}
	return all
}

// BrandListing is the result of reading a designer page.
type BrandListing struct {
	URL         string       `json:"url"`
	BrandName   string       `json:"brandName"`
	Collections []Collection `json:"collections"`
	PerfumeURLs []string     `json:"perfumeUrls"`
}

type Collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BrandTargets is one entry of a bulk multi-brand crawl request.
type BrandTargets struct {
	BrandName    string   `json:"brandName"`
	PerfumeLinks []string `json:"perfumeLinks"`
}

// Brand is a persisted brand row.
type Brand struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Perfume is a persisted perfume row.
type Perfume struct {
	ID        int64     `json:"id"`
	BrandID   int64     `json:"brandId"`
	BrandName string    `json:"brandName,omitempty"`
	Name      string    `json:"name"`
	SourceURL string    `json:"sourceUrl"`
	Accords   []Accord  `json:"accords"`
	Notes     Notes     `json:"notes"`
	CreatedAt time.Time `json:"createdAt"`
}
