package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/fragrance-scraper/internal/metrics"
	"github.com/maltedev/fragrance-scraper/internal/models"
	"github.com/maltedev/fragrance-scraper/internal/queue"
)

// Crawler loads and extracts rendered pages. *scraper.Session satisfies it.
type Crawler interface {
	LoadAndExtract(ctx context.Context, url, brandOverride string) (*models.Record, error)
	LoadListing(ctx context.Context, url string) (*models.BrandListing, error)
}

// Gateway is the ingestion side consumed by crawl jobs. Both
// *database.PerfumeStore and *storage.FileStore satisfy it. Find methods
// return a nil perfume when nothing matches.
type Gateway interface {
	FindBySourceURL(ctx context.Context, url string) (*models.Perfume, error)
	FindByBrandAndTitle(ctx context.Context, brandName, title string) (*models.Perfume, error)
	FindOrCreateBrand(ctx context.Context, name string) (*models.Brand, error)
	CreateRecord(ctx context.Context, brand *models.Brand, rec *models.Record) (*models.Perfume, error)
	BulkCreateRecords(ctx context.Context, brandName string, recs []*models.Record) ([]*models.Perfume, error)
}

type EventPublisher interface {
	PublishPerfumeIngested(ctx context.Context, perfume *models.Perfume, jobID string) error
}

// Manager owns every job it creates. Only one job drives the crawler at a
// time; the others wait in queued.
type Manager struct {
	repo      Repository
	crawler   Crawler
	gateway   Gateway
	publisher EventPublisher
	scheduler *queue.Scheduler
	logger    *slog.Logger

	slot chan struct{}
	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	jobs    map[string]*Job
	cancels map[string]context.CancelFunc

	now   func() time.Time
	newID func() (uuid.UUID, error)
}

func NewManager(repo Repository, crawler Crawler, gateway Gateway, publisher EventPublisher, scheduler *queue.Scheduler, logger *slog.Logger) *Manager {
	base, stop := context.WithCancel(context.Background())
	return &Manager{
		repo:      repo,
		crawler:   crawler,
		gateway:   gateway,
		publisher: publisher,
		scheduler: scheduler,
		logger:    logger.With("component", "job_manager"),
		slot:      make(chan struct{}, 1),
		base:      base,
		stop:      stop,
		jobs:      make(map[string]*Job),
		cancels:   make(map[string]context.CancelFunc),
		now:       time.Now,
		newID:     uuid.NewV7,
	}
}

// target is one URL to crawl with the brand that overrides the scraped one.
type target struct {
	url   string
	brand string
}

type runFunc func(ctx context.Context, job *Job) error

func (m *Manager) StartSinglePage(ctx context.Context, url string, autoSave bool) (*Job, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}

	job, err := m.create(ctx, KindSinglePage, func(j *Job) {
		j.Target = url
		j.AutoSave = autoSave
		j.ItemsTotal = 1
	})
	if err != nil {
		return nil, err
	}

	targets := []target{{url: url}}
	return m.launch(job, func(ctx context.Context, job *Job) error {
		return m.runTargets(ctx, job, targets, false)
	}), nil
}

func (m *Manager) StartBrandListing(ctx context.Context, brandURL string, autoSave, batchMode bool) (*Job, error) {
	brandURL = strings.TrimSpace(brandURL)
	if brandURL == "" {
		return nil, fmt.Errorf("%w: brand url is required", ErrInvalidRequest)
	}

	job, err := m.create(ctx, KindBrandListing, func(j *Job) {
		j.Target = brandURL
		j.AutoSave = autoSave
		j.BatchMode = batchMode
	})
	if err != nil {
		return nil, err
	}

	return m.launch(job, m.runBrandListing), nil
}

// StartBulkMultiBrand always saves. Known URLs are reported as duplicates
// without being visited.
func (m *Manager) StartBulkMultiBrand(ctx context.Context, brands []models.BrandTargets) (*Job, error) {
	if len(brands) == 0 {
		return nil, fmt.Errorf("%w: at least one brand is required", ErrInvalidRequest)
	}

	total := 0
	cleaned := make([]models.BrandTargets, 0, len(brands))
	for i, b := range brands {
		name := strings.TrimSpace(b.BrandName)
		if name == "" {
			return nil, fmt.Errorf("%w: brand %d has no name", ErrInvalidRequest, i)
		}

		var links []string
		for _, l := range b.PerfumeLinks {
			if l = strings.TrimSpace(l); l != "" {
				links = append(links, l)
			}
		}
		if len(links) == 0 {
			return nil, fmt.Errorf("%w: brand %q has no perfume links", ErrInvalidRequest, name)
		}

		total += len(links)
		cleaned = append(cleaned, models.BrandTargets{BrandName: name, PerfumeLinks: links})
	}

	job, err := m.create(ctx, KindBulkMultiBrand, func(j *Job) {
		j.Brands = cleaned
		j.AutoSave = true
		j.ItemsTotal = total
	})
	if err != nil {
		return nil, err
	}

	return m.launch(job, m.runBulkMultiBrand), nil
}

// RetryFailed starts a new job over the failed items of a completed job.
func (m *Manager) RetryFailed(ctx context.Context, jobID string, autoSave bool) (*Job, error) {
	source, err := m.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if source.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrJobNotCompleted, jobID, source.Status)
	}

	failed := source.failedItems()
	if len(failed) == 0 {
		return nil, ErrNothingToRetry
	}

	targets := make([]target, 0, len(failed))
	for _, r := range failed {
		targets = append(targets, target{url: r.URL, brand: r.BrandName})
	}

	job, err := m.create(ctx, KindRetryFailed, func(j *Job) {
		j.SourceJobID = source.ID
		j.AutoSave = autoSave
		j.ItemsTotal = len(targets)
	})
	if err != nil {
		return nil, err
	}

	return m.launch(job, func(ctx context.Context, job *Job) error {
		return m.runTargets(ctx, job, targets, false)
	}), nil
}

// Cancel stops a queued or running job. The running item finishes; no new
// item starts.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	m.mu.Lock()
	job, owned := m.jobs[jobID]
	if !owned {
		m.mu.Unlock()
		return m.cancelStored(ctx, jobID)
	}

	if err := job.transition(StatusCancelled, m.now()); err != nil {
		m.mu.Unlock()
		return err
	}
	job.Message = "cancelled"
	if cancel, ok := m.cancels[jobID]; ok {
		cancel()
	}
	snapshot := job.clone()
	m.mu.Unlock()

	m.logger.Info("job cancelled", "job_id", jobID)
	return m.persist(ctx, snapshot)
}

// cancelStored handles jobs loaded from a shared repository that this
// process does not drive.
func (m *Manager) cancelStored(ctx context.Context, jobID string) error {
	job, err := m.repo.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := job.transition(StatusCancelled, m.now()); err != nil {
		return err
	}
	return m.persist(ctx, job)
}

// CancelAll cancels every non-terminal job this manager owns.
func (m *Manager) CancelAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	var ids []string
	for id, job := range m.jobs {
		if !job.Status.Terminal() {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	cancelled := 0
	for _, id := range ids {
		err := m.Cancel(ctx, id)
		if errors.Is(err, ErrJobTerminal) {
			continue
		}
		if err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

func (m *Manager) Get(ctx context.Context, jobID string) (*Job, error) {
	m.mu.Lock()
	if job, ok := m.jobs[jobID]; ok {
		snapshot := job.clone()
		m.mu.Unlock()
		return snapshot, nil
	}
	m.mu.Unlock()

	return m.repo.Get(ctx, jobID)
}

// List returns all jobs ordered by creation. Owned jobs are reported from
// memory so the listing never lags behind a running crawl.
func (m *Manager) List(ctx context.Context) ([]*Job, error) {
	stored, err := m.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(m.jobs))
	jobs := make([]*Job, 0, len(stored)+len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job.clone())
		seen[job.ID] = struct{}{}
	}
	for _, job := range stored {
		if _, ok := seen[job.ID]; !ok {
			jobs = append(jobs, job)
		}
	}

	sortByCreation(jobs)
	return jobs, nil
}

// Shutdown cancels every job and waits for the workers to return or ctx to
// expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) create(ctx context.Context, kind Kind, init func(*Job)) (*Job, error) {
	id, err := m.newID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate job id: %w", err)
	}

	job := &Job{
		ID:        id.String(),
		Kind:      kind,
		Status:    StatusQueued,
		Results:   []ItemResult{},
		CreatedAt: m.now(),
	}
	init(job)

	if err := m.repo.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.logger.Info("job created", "job_id", job.ID, "kind", kind)
	return job.clone(), nil
}

// launch runs fn in the background once the crawl slot is free and returns
// the queued snapshot.
func (m *Manager) launch(snapshot *Job, fn runFunc) *Job {
	ctx, cancel := context.WithCancel(m.base)

	m.mu.Lock()
	job := m.jobs[snapshot.ID]
	m.cancels[job.ID] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		defer func() {
			m.mu.Lock()
			delete(m.cancels, job.ID)
			m.mu.Unlock()
		}()

		select {
		case m.slot <- struct{}{}:
		case <-ctx.Done():
			m.finish(job, ctx.Err())
			return
		}
		defer func() { <-m.slot }()

		if !m.begin(job) {
			return
		}

		metrics.IncActiveJobs()
		err := fn(ctx, job)
		metrics.DecActiveJobs()
		m.finish(job, err)
	}()

	return snapshot
}

func (m *Manager) begin(job *Job) bool {
	m.mu.Lock()
	err := job.transition(StatusRunning, m.now())
	snapshot := job.clone()
	m.mu.Unlock()

	if err != nil {
		return false
	}

	m.logger.Info("job started", "job_id", job.ID, "kind", job.Kind)
	m.persistAsync(snapshot)
	return true
}

// finish moves the job to its terminal state. A job already cancelled
// through Cancel keeps that state.
func (m *Manager) finish(job *Job, runErr error) {
	m.mu.Lock()
	if job.Status.Terminal() {
		snapshot := job.clone()
		m.mu.Unlock()
		m.persistAsync(snapshot)
		metrics.ObserveJob(string(snapshot.Kind), string(snapshot.Status))
		return
	}

	now := m.now()
	switch {
	case runErr == nil:
		_ = job.transition(StatusCompleted, now)
		job.Message = ""
	case errors.Is(runErr, context.Canceled):
		_ = job.transition(StatusCancelled, now)
		job.Message = "cancelled"
	default:
		_ = job.transition(StatusFailed, now)
		job.Error = runErr.Error()
	}
	snapshot := job.clone()
	m.mu.Unlock()

	if runErr != nil && snapshot.Status == StatusFailed {
		m.logger.Error("job failed", "job_id", job.ID, "error", runErr)
	} else {
		m.logger.Info("job finished",
			"job_id", job.ID,
			"status", snapshot.Status,
			"saved", snapshot.Counts.Saved,
			"duplicate", snapshot.Counts.Duplicate,
			"failed", snapshot.Counts.Failed)
	}

	metrics.ObserveJob(string(snapshot.Kind), string(snapshot.Status))
	m.persistAsync(snapshot)
}

// update applies fn to the owned job and stores the new snapshot.
func (m *Manager) update(job *Job, fn func(*Job)) {
	m.mu.Lock()
	fn(job)
	snapshot := job.clone()
	m.mu.Unlock()

	m.persistAsync(snapshot)
}

func (m *Manager) persist(ctx context.Context, snapshot *Job) error {
	if err := m.repo.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// persistAsync stores a snapshot from a worker. Failures are logged; the
// owned job stays authoritative.
func (m *Manager) persistAsync(snapshot *Job) {
	if err := m.persist(context.Background(), snapshot); err != nil {
		m.logger.Warn("failed to persist job snapshot", "job_id", snapshot.ID, "error", err)
	}
}
