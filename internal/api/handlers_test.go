package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/fragrance-scraper/internal/jobs"
	"github.com/maltedev/fragrance-scraper/internal/models"
	"github.com/maltedev/fragrance-scraper/internal/similarity"
)

type MockJobService struct {
	mock.Mock
}

func jobOrNil(args mock.Arguments) *jobs.Job {
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*jobs.Job)
}

func (m *MockJobService) StartSinglePage(ctx context.Context, url string, autoSave bool) (*jobs.Job, error) {
	args := m.Called(ctx, url, autoSave)
	return jobOrNil(args), args.Error(1)
}

func (m *MockJobService) StartBrandListing(ctx context.Context, brandURL string, autoSave, batchMode bool) (*jobs.Job, error) {
	args := m.Called(ctx, brandURL, autoSave, batchMode)
	return jobOrNil(args), args.Error(1)
}

func (m *MockJobService) StartBulkMultiBrand(ctx context.Context, brands []models.BrandTargets) (*jobs.Job, error) {
	args := m.Called(ctx, brands)
	return jobOrNil(args), args.Error(1)
}

func (m *MockJobService) RetryFailed(ctx context.Context, jobID string, autoSave bool) (*jobs.Job, error) {
	args := m.Called(ctx, jobID, autoSave)
	return jobOrNil(args), args.Error(1)
}

func (m *MockJobService) Cancel(ctx context.Context, jobID string) error {
	return m.Called(ctx, jobID).Error(0)
}

func (m *MockJobService) CancelAll(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockJobService) Get(ctx context.Context, jobID string) (*jobs.Job, error) {
	args := m.Called(ctx, jobID)
	return jobOrNil(args), args.Error(1)
}

func (m *MockJobService) List(ctx context.Context) ([]*jobs.Job, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*jobs.Job), args.Error(1)
}

type stubPerfumes struct {
	perfumes []*models.Perfume
	err      error
}

func (s *stubPerfumes) GetPerfume(_ context.Context, id int64) (*models.Perfume, error) {
	for _, p := range s.perfumes {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("perfume %d: %w", id, models.ErrNotFound)
}

func (s *stubPerfumes) ListPerfumes(_ context.Context) ([]*models.Perfume, error) {
	return s.perfumes, s.err
}

type stubOutbox struct {
	pending, deadLetter int64
}

func (s stubOutbox) GetPendingCount(context.Context) (int64, error)    { return s.pending, nil }
func (s stubOutbox) GetDeadLetterCount(context.Context) (int64, error) { return s.deadLetter, nil }

func newTestRouter(svc JobService, perfumes PerfumeReader, outbox OutboxStats) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandlers(svc, perfumes, similarity.NewMatcher(nil), logger)
	return NewRouter(h, RouterConfig{Outbox: outbox})
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestStartSinglePageHandler(t *testing.T) {
	svc := new(MockJobService)
	svc.On("StartSinglePage", mock.Anything, "https://www.fragrantica.com/perfume/x.html", true).
		Return(&jobs.Job{ID: "job-1", Status: jobs.StatusQueued}, nil)

	rec := do(t, newTestRouter(svc, nil, nil), http.MethodPost, "/api/v1/scraper/perfume",
		`{"url":"https://www.fragrantica.com/perfume/x.html","autoSave":true}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp JobAccepted
	decodeBody(t, rec, &resp)
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, jobs.StatusQueued, resp.Status)
	svc.AssertExpectations(t)
}

func TestStartHandlersRejectInvalidInput(t *testing.T) {
	svc := new(MockJobService)
	svc.On("StartSinglePage", mock.Anything, "", false).Return(nil, fmt.Errorf("%w: url is required", jobs.ErrInvalidRequest))
	router := newTestRouter(svc, nil, nil)

	rec := do(t, router, http.MethodPost, "/api/v1/scraper/perfume", `{"url":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "url is required")

	rec = do(t, router, http.MethodPost, "/api/v1/scraper/brand", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request body")
}

func TestStartBrandAndBulkHandlers(t *testing.T) {
	svc := new(MockJobService)
	svc.On("StartBrandListing", mock.Anything, "https://www.fragrantica.com/designers/Creed.html", true, true).
		Return(&jobs.Job{ID: "brand-job", Status: jobs.StatusQueued}, nil)
	svc.On("StartBulkMultiBrand", mock.Anything, []models.BrandTargets{
		{BrandName: "Creed", PerfumeLinks: []string{"https://a", "https://b"}},
	}).Return(&jobs.Job{ID: "bulk-job", Status: jobs.StatusQueued}, nil)
	router := newTestRouter(svc, nil, nil)

	rec := do(t, router, http.MethodPost, "/api/v1/scraper/brand",
		`{"brandUrl":"https://www.fragrantica.com/designers/Creed.html","autoSave":true,"batchMode":true}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "brand-job")

	rec = do(t, router, http.MethodPost, "/api/v1/scraper/bulk",
		`{"brands":[{"brandName":"Creed","perfumeLinks":["https://a","https://b"]}]}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "bulk-job")
	svc.AssertExpectations(t)
}

func TestRetryHandler(t *testing.T) {
	svc := new(MockJobService)
	svc.On("RetryFailed", mock.Anything, "done", true).Return(&jobs.Job{ID: "retry-1", Status: jobs.StatusQueued}, nil)
	svc.On("RetryFailed", mock.Anything, "clean", false).Return(nil, jobs.ErrNothingToRetry)
	svc.On("RetryFailed", mock.Anything, "running", false).Return(nil, fmt.Errorf("%w: running", jobs.ErrJobNotCompleted))
	router := newTestRouter(svc, nil, nil)

	rec := do(t, router, http.MethodPost, "/api/v1/scraper/jobs/done/retry", `{"autoSave":true}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "retry-1")

	rec = do(t, router, http.MethodPost, "/api/v1/scraper/jobs/clean/retry", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var empty map[string]interface{}
	decodeBody(t, rec, &empty)
	assert.Nil(t, empty["jobId"])
	assert.Empty(t, empty["results"])

	rec = do(t, router, http.MethodPost, "/api/v1/scraper/jobs/running/retry", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelHandlers(t *testing.T) {
	svc := new(MockJobService)
	svc.On("Cancel", mock.Anything, "running").Return(nil)
	svc.On("Cancel", mock.Anything, "missing").Return(fmt.Errorf("%w: missing", jobs.ErrJobNotFound))
	svc.On("Cancel", mock.Anything, "done").Return(fmt.Errorf("%w: done is completed", jobs.ErrJobTerminal))
	svc.On("CancelAll", mock.Anything).Return(3, nil)
	router := newTestRouter(svc, nil, nil)

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/v1/scraper/jobs/running/cancel", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodPost, "/api/v1/scraper/jobs/missing/cancel", "").Code)
	assert.Equal(t, http.StatusConflict, do(t, router, http.MethodPost, "/api/v1/scraper/jobs/done/cancel", "").Code)

	rec := do(t, router, http.MethodPost, "/api/v1/scraper/jobs/cancel-all", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cancelled":3}`, rec.Body.String())
}

func TestGetAndListJobs(t *testing.T) {
	svc := new(MockJobService)
	job := &jobs.Job{ID: "j1", Kind: jobs.KindSinglePage, Status: jobs.StatusRunning, ProgressPercent: 40, Results: []jobs.ItemResult{}}
	svc.On("Get", mock.Anything, "j1").Return(job, nil)
	svc.On("Get", mock.Anything, "nope").Return(nil, fmt.Errorf("%w: nope", jobs.ErrJobNotFound))
	svc.On("List", mock.Anything).Return([]*jobs.Job{job}, nil)
	router := newTestRouter(svc, nil, nil)

	rec := do(t, router, http.MethodGet, "/api/v1/scraper/jobs/j1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var got jobs.Job
	decodeBody(t, rec, &got)
	assert.Equal(t, 40, got.ProgressPercent)
	assert.Equal(t, jobs.StatusRunning, got.Status)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/v1/scraper/jobs/nope", "").Code)

	rec = do(t, router, http.MethodGet, "/api/v1/scraper/jobs", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var list []jobs.Job
	decodeBody(t, rec, &list)
	assert.Len(t, list, 1)
}

func TestInternalErrorsAreHidden(t *testing.T) {
	svc := new(MockJobService)
	svc.On("CancelAll", mock.Anything).Return(0, errors.New("redis: connection refused"))

	rec := do(t, newTestRouter(svc, nil, nil), http.MethodPost, "/api/v1/scraper/jobs/cancel-all", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "redis")
}

func perfumeWithNotes(id int64, name string, top, base []string) *models.Perfume {
	notes := models.NewNotes()
	notes.Top = top
	notes.Base = base
	return &models.Perfume{ID: id, Name: name, BrandName: "House", Notes: notes}
}

func TestSimilarPerfumes(t *testing.T) {
	perfumes := &stubPerfumes{perfumes: []*models.Perfume{
		perfumeWithNotes(1, "Target", []string{"Bergamot", "Pink Pepper"}, []string{"Vanilla", "Musk"}),
		perfumeWithNotes(2, "One shared", []string{"Bergamot"}, []string{"Oud"}),
		perfumeWithNotes(3, "Three shared", []string{"Bergamot"}, []string{"Vanilla", "White Musk"}),
		perfumeWithNotes(4, "Two shared", []string{"Bergamot Oil"}, []string{"Madagascar Vanilla"}),
	}}
	router := newTestRouter(new(MockJobService), perfumes, nil)

	rec := do(t, router, http.MethodGet, "/api/v1/perfumes/1/similar", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SimilarResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, int64(1), resp.Perfume.ID)
	require.Len(t, resp.Similar, 2)
	assert.Equal(t, int64(3), resp.Similar[0].ID)
	assert.Equal(t, int64(4), resp.Similar[1].ID)
	assert.GreaterOrEqual(t, resp.Similar[1].CommonCount, 2)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/v1/perfumes/99/similar", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/v1/perfumes/abc/similar", "").Code)
}

func TestSimilarPerfumesLimitIsCapped(t *testing.T) {
	all := []*models.Perfume{perfumeWithNotes(1, "Target", []string{"Lime", "Pine"}, nil)}
	for i := int64(2); i <= 15; i++ {
		all = append(all, perfumeWithNotes(i, fmt.Sprintf("Match %d", i), []string{"lime"}, []string{"pine"}))
	}
	router := newTestRouter(new(MockJobService), &stubPerfumes{perfumes: all}, nil)

	tests := []struct {
		query string
		want  int
	}{
		{"", similarity.DefaultLimit},
		{"?limit=3", 3},
		{"?limit=50", similarity.DefaultLimit},
		{"?limit=abc", similarity.DefaultLimit},
	}

	for _, tt := range tests {
		rec := do(t, router, http.MethodGet, "/api/v1/perfumes/1/similar"+tt.query, "")
		require.Equal(t, http.StatusOK, rec.Code, tt.query)

		var resp SimilarResponse
		decodeBody(t, rec, &resp)
		assert.Len(t, resp.Similar, tt.want, tt.query)
	}
}

func TestSimilarityAdminEndpoints(t *testing.T) {
	router := newTestRouter(new(MockJobService), nil, nil)

	rec := do(t, router, http.MethodGet, "/api/v1/similarity/expand?note=Fig%20Leaf", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var exp similarity.Expansion
	decodeBody(t, rec, &exp)
	assert.NotEqual(t, similarity.TierNone, exp.Tier)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/v1/similarity/expand", "").Code)

	rec = do(t, router, http.MethodPost, "/api/v1/similarity/groups", `{"canonical":"yuzu","variants":["japanese citron"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/v1/similarity/compare", `{"a":["Japanese Citron"],"b":["Yuzu"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res similarity.Result
	decodeBody(t, rec, &res)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, []string{"yuzu"}, res.Common)

	assert.Equal(t, http.StatusBadRequest,
		do(t, router, http.MethodPost, "/api/v1/similarity/groups", `{"canonical":" "}`).Code)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		outbox     OutboxStats
		wantCode   int
		wantStatus string
	}{
		{"no outbox", nil, http.StatusOK, "ok"},
		{"healthy outbox", stubOutbox{pending: 3}, http.StatusOK, "ok"},
		{"backlog", stubOutbox{pending: 5000}, http.StatusOK, "warning"},
		{"dead letters", stubOutbox{deadLetter: 500}, http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestRouter(new(MockJobService), nil, tt.outbox), http.MethodGet, "/health", "")
			assert.Equal(t, tt.wantCode, rec.Code)

			var body map[string]interface{}
			decodeBody(t, rec, &body)
			assert.Equal(t, tt.wantStatus, body["status"])
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(new(MockJobService), nil, nil)
	do(t, router, http.MethodGet, "/health", "")

	rec := do(t, router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}
