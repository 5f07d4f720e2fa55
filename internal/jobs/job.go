// Package jobs tracks long-running crawl jobs and drives them through the
// scheduler, the navigation session and the ingestion gateway.
package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/maltedev/fragrance-scraper/internal/models"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrJobTerminal     = errors.New("job already finished")
	ErrJobNotCompleted = errors.New("job is not completed")
	ErrNothingToRetry  = errors.New("no failed items to retry")
	ErrInvalidRequest  = errors.New("invalid request")
	errBadTransition   = errors.New("invalid status transition")
)

type Kind string

const (
	KindSinglePage     Kind = "single-page"
	KindBrandListing   Kind = "brand-listing"
	KindBulkMultiBrand Kind = "bulk-multi-brand"
	KindRetryFailed    Kind = "retry-failed"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var transitions = map[Status][]Status{
	StatusQueued:  {StatusRunning, StatusCancelled, StatusFailed},
	StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled},
}

type ItemStatus string

const (
	ItemSaved        ItemStatus = "saved"
	ItemDuplicate    ItemStatus = "duplicate"
	ItemFailed       ItemStatus = "failed"
	ItemExtracted    ItemStatus = "extracted"
	ItemPendingBatch ItemStatus = "pending_batch"
)

type Counts struct {
	Saved     int `json:"saved"`
	Duplicate int `json:"duplicate"`
	Failed    int `json:"failed"`
	Extracted int `json:"extracted"`
}

func (c *Counts) add(s ItemStatus, delta int) {
	switch s {
	case ItemSaved:
		c.Saved += delta
	case ItemDuplicate:
		c.Duplicate += delta
	case ItemFailed:
		c.Failed += delta
	case ItemExtracted:
		c.Extracted += delta
	}
}

// ItemResult is the outcome for one crawled URL.
type ItemResult struct {
	URL       string         `json:"url"`
	BrandName string         `json:"brandName,omitempty"`
	Status    ItemStatus     `json:"status"`
	Record    *models.Record `json:"record,omitempty"`
	PerfumeID *int64         `json:"perfumeId,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type Job struct {
	ID              string       `json:"id"`
	Kind            Kind         `json:"kind"`
	Status          Status       `json:"status"`
	ProgressPercent int          `json:"progressPercent"`
	ItemsTotal      int          `json:"itemsTotal"`
	ItemsProcessed  int          `json:"itemsProcessed"`
	Counts          Counts       `json:"counts"`
	Results         []ItemResult `json:"results"`
	Error           string       `json:"error,omitempty"`
	Message         string       `json:"message,omitempty"`

	Target      string                `json:"target,omitempty"`
	BrandName   string                `json:"brandName,omitempty"`
	Brands      []models.BrandTargets `json:"brands,omitempty"`
	AutoSave    bool                  `json:"autoSave"`
	BatchMode   bool                  `json:"batchMode"`
	SourceJobID string                `json:"sourceJobId,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

func (j *Job) transition(to Status, now time.Time) error {
	if j.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobTerminal, j.ID, j.Status)
	}

	allowed := false
	for _, s := range transitions[j.Status] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", errBadTransition, j.Status, to)
	}

	j.Status = to
	switch {
	case to == StatusRunning:
		j.StartedAt = &now
	case to.Terminal():
		j.FinishedAt = &now
	}
	if to == StatusCompleted {
		j.ProgressPercent = 100
	}
	return nil
}

// record appends an item outcome and advances progress. It returns the
// index of the stored result.
func (j *Job) record(r ItemResult) int {
	j.Results = append(j.Results, r)
	j.Counts.add(r.Status, 1)
	j.ItemsProcessed++

	if j.ItemsTotal > 0 {
		p := j.ItemsProcessed * 100 / j.ItemsTotal
		if p > 99 {
			p = 99
		}
		if p > j.ProgressPercent {
			j.ProgressPercent = p
		}
	}
	return len(j.Results) - 1
}

// settle replaces the status of an already recorded result.
func (j *Job) settle(i int, status ItemStatus, perfumeID *int64, errMsg string) {
	r := &j.Results[i]
	j.Counts.add(r.Status, -1)
	r.Status = status
	r.PerfumeID = perfumeID
	r.Error = errMsg
	j.Counts.add(status, 1)
}

func (j *Job) failedItems() []ItemResult {
	var failed []ItemResult
	for _, r := range j.Results {
		if r.Status == ItemFailed {
			failed = append(failed, r)
		}
	}
	return failed
}

func (j *Job) clone() *Job {
	c := *j
	c.Results = append([]ItemResult(nil), j.Results...)
	c.Brands = append([]models.BrandTargets(nil), j.Brands...)
	if c.Results == nil {
		c.Results = []ItemResult{}
	}
	return &c
}
