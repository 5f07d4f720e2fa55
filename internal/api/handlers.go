package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/fragrance-scraper/internal/jobs"
	"github.com/maltedev/fragrance-scraper/internal/models"
	"github.com/maltedev/fragrance-scraper/internal/similarity"
)

// JobService is the job control surface. *jobs.Manager satisfies it.
type JobService interface {
	StartSinglePage(ctx context.Context, url string, autoSave bool) (*jobs.Job, error)
	StartBrandListing(ctx context.Context, brandURL string, autoSave, batchMode bool) (*jobs.Job, error)
	StartBulkMultiBrand(ctx context.Context, brands []models.BrandTargets) (*jobs.Job, error)
	RetryFailed(ctx context.Context, jobID string, autoSave bool) (*jobs.Job, error)
	Cancel(ctx context.Context, jobID string) error
	CancelAll(ctx context.Context) (int, error)
	Get(ctx context.Context, jobID string) (*jobs.Job, error)
	List(ctx context.Context) ([]*jobs.Job, error)
}

// PerfumeReader is the read side of the ingestion gateway.
type PerfumeReader interface {
	GetPerfume(ctx context.Context, id int64) (*models.Perfume, error)
	ListPerfumes(ctx context.Context) ([]*models.Perfume, error)
}

type Handlers struct {
	jobs     JobService
	perfumes PerfumeReader
	matcher  *similarity.Matcher
	logger   *slog.Logger
}

func NewHandlers(jobService JobService, perfumes PerfumeReader, matcher *similarity.Matcher, logger *slog.Logger) *Handlers {
	return &Handlers{
		jobs:     jobService,
		perfumes: perfumes,
		matcher:  matcher,
		logger:   logger.With("component", "api"),
	}
}

type SinglePageRequest struct {
	URL      string `json:"url"`
	AutoSave bool   `json:"autoSave"`
}

type BrandListingRequest struct {
	BrandURL  string `json:"brandUrl"`
	AutoSave  bool   `json:"autoSave"`
	BatchMode bool   `json:"batchMode"`
}

type BulkRequest struct {
	Brands []models.BrandTargets `json:"brands"`
}

type RetryRequest struct {
	AutoSave bool `json:"autoSave"`
}

type JobAccepted struct {
	JobID   string      `json:"jobId"`
	Status  jobs.Status `json:"status"`
	Message string      `json:"message,omitempty"`
}

// StartSinglePage handles POST /scraper/perfume.
func (h *Handlers) StartSinglePage(w http.ResponseWriter, r *http.Request) {
	var req SinglePageRequest
	if !h.decode(w, r, &req) {
		return
	}

	job, err := h.jobs.StartSinglePage(r.Context(), req.URL, req.AutoSave)
	if err != nil {
		h.respondJobError(w, err)
		return
	}

	h.respondJSON(w, http.StatusAccepted, JobAccepted{JobID: job.ID, Status: job.Status})
}

// StartBrandListing handles POST /scraper/brand.
func (h *Handlers) StartBrandListing(w http.ResponseWriter, r *http.Request) {
	var req BrandListingRequest
	if !h.decode(w, r, &req) {
		return
	}

	job, err := h.jobs.StartBrandListing(r.Context(), req.BrandURL, req.AutoSave, req.BatchMode)
	if err != nil {
		h.respondJobError(w, err)
		return
	}

	h.respondJSON(w, http.StatusAccepted, JobAccepted{JobID: job.ID, Status: job.Status})
}

// StartBulk handles POST /scraper/bulk.
func (h *Handlers) StartBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if !h.decode(w, r, &req) {
		return
	}

	job, err := h.jobs.StartBulkMultiBrand(r.Context(), req.Brands)
	if err != nil {
		h.respondJobError(w, err)
		return
	}

	h.respondJSON(w, http.StatusAccepted, JobAccepted{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "bulk crawl running in background",
	})
}

// RetryFailed handles POST /scraper/jobs/{jobID}/retry. A job without failed
// items yields an empty 200 response instead of a new job.
func (h *Handlers) RetryFailed(w http.ResponseWriter, r *http.Request) {
	var req RetryRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	job, err := h.jobs.RetryFailed(r.Context(), chi.URLParam(r, "jobID"), req.AutoSave)
	if errors.Is(err, jobs.ErrNothingToRetry) {
		h.respondJSON(w, http.StatusOK, map[string]interface{}{
			"jobId":   nil,
			"results": []jobs.ItemResult{},
			"message": "no failed items to retry",
		})
		return
	}
	if err != nil {
		h.respondJobError(w, err)
		return
	}

	h.respondJSON(w, http.StatusAccepted, JobAccepted{JobID: job.ID, Status: job.Status})
}

// CancelJob handles POST /scraper/jobs/{jobID}/cancel.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := h.jobs.Cancel(r.Context(), jobID); err != nil {
		h.respondJobError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, JobAccepted{JobID: jobID, Status: jobs.StatusCancelled})
}

// CancelAll handles POST /scraper/jobs/cancel-all.
func (h *Handlers) CancelAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.jobs.CancelAll(r.Context())
	if err != nil {
		h.respondJobError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]int{"cancelled": n})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondJobError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.jobs.List(r.Context())
	if err != nil {
		h.respondJobError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// respondJobError maps job and gateway errors to a status code.
func (h *Handlers) respondJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrInvalidRequest):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, jobs.ErrJobNotFound), errors.Is(err, models.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jobs.ErrJobTerminal), errors.Is(err, jobs.ErrJobNotCompleted):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
