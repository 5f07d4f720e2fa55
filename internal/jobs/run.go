package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/maltedev/fragrance-scraper/internal/metrics"
	"github.com/maltedev/fragrance-scraper/internal/models"
	"github.com/maltedev/fragrance-scraper/internal/parser"
	"github.com/maltedev/fragrance-scraper/internal/ratelimit"
)

func (m *Manager) runBrandListing(ctx context.Context, job *Job) error {
	listing, err := m.crawler.LoadListing(ctx, job.Target)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to resolve brand listing: %w", err)
	}

	m.logger.Info("brand listing resolved",
		"job_id", job.ID,
		"brand", listing.BrandName,
		"collections", len(listing.Collections),
		"perfumes", len(listing.PerfumeURLs))

	targets := make([]target, 0, len(listing.PerfumeURLs))
	for _, url := range listing.PerfumeURLs {
		targets = append(targets, target{url: url, brand: listing.BrandName})
	}

	m.update(job, func(j *Job) {
		j.BrandName = listing.BrandName
		j.ItemsTotal = len(targets)
	})

	buffer := job.AutoSave && job.BatchMode
	runErr := m.runTargets(ctx, job, targets, buffer)
	if buffer {
		m.commitBatch(context.WithoutCancel(ctx), job, listing.BrandName)
	}
	return runErr
}

func (m *Manager) runBulkMultiBrand(ctx context.Context, job *Job) error {
	lookupCtx := context.WithoutCancel(ctx)

	var fresh []target
	for _, b := range job.Brands {
		if err := ctx.Err(); err != nil {
			return err
		}

		brand, err := m.gateway.FindOrCreateBrand(lookupCtx, b.BrandName)
		if err != nil {
			return fmt.Errorf("failed to resolve brand %q: %w", b.BrandName, err)
		}

		for _, url := range b.PerfumeLinks {
			existing, err := m.gateway.FindBySourceURL(lookupCtx, url)
			if err != nil {
				return fmt.Errorf("failed to look up %s: %w", url, err)
			}
			if existing == nil {
				fresh = append(fresh, target{url: url, brand: brand.Name})
				continue
			}

			id := existing.ID
			m.update(job, func(j *Job) {
				j.record(ItemResult{URL: url, BrandName: brand.Name, Status: ItemDuplicate, PerfumeID: &id})
			})
			metrics.ObserveItem(string(ItemDuplicate))
		}
	}

	m.logger.Info("bulk targets partitioned",
		"job_id", job.ID,
		"new", len(fresh),
		"known", job.ItemsTotal-len(fresh))

	return m.runTargets(ctx, job, fresh, false)
}

// runTargets paces targets through the scheduler and records one result per
// dispatched URL.
func (m *Manager) runTargets(ctx context.Context, job *Job, targets []target, buffer bool) error {
	urls := make([]string, len(targets))
	for i, t := range targets {
		urls[i] = t.url
	}

	stats, err := m.scheduler.Run(ctx, urls, func(ctx context.Context, i int, url string) error {
		res, err := m.crawlItem(ctx, job, targets[i], buffer)
		metrics.ObserveItem(string(res.Status))

		m.update(job, func(j *Job) {
			j.record(res)
			if errors.Is(err, ratelimit.ErrRateLimited) {
				j.Message = "rate limited, cooling down"
			} else {
				j.Message = ""
			}
		})
		return err
	})

	m.logger.Info("targets processed",
		"job_id", job.ID,
		"dispatched", stats.Dispatched,
		"failed", stats.Failed,
		"cooldowns", stats.Cooldowns,
		"batches", stats.Batches)

	return err
}

// crawlItem loads one URL, dedups it and persists it when asked to. The
// returned error is the navigation error, passed back to the scheduler.
func (m *Manager) crawlItem(ctx context.Context, job *Job, t target, buffer bool) (ItemResult, error) {
	res := ItemResult{URL: t.url, BrandName: t.brand}

	rec, err := m.crawler.LoadAndExtract(ctx, t.url, t.brand)
	if err != nil {
		m.logger.Warn("item failed", "job_id", job.ID, "url", t.url, "error", err)
		res.Status = ItemFailed
		res.Error = err.Error()
		return res, err
	}
	res.BrandName = rec.BrandName

	// The item was already paid for with a page load; finish it even if the
	// job is cancelled meanwhile.
	ctx = context.WithoutCancel(ctx)

	existing, err := m.findExisting(ctx, rec)
	if err != nil {
		res.Status = ItemFailed
		res.Error = err.Error()
		return res, nil
	}
	if existing != nil {
		id := existing.ID
		res.Status = ItemDuplicate
		res.PerfumeID = &id
		return res, nil
	}

	switch {
	case !job.AutoSave:
		res.Status = ItemExtracted
		res.Record = rec
		return res, nil
	case buffer:
		res.Status = ItemPendingBatch
		res.Record = rec
		return res, nil
	}

	perfume, err := m.save(ctx, rec)
	switch {
	case errors.Is(err, models.ErrDuplicate):
		res.Status = ItemDuplicate
		return res, nil
	case err != nil:
		m.logger.Error("failed to save perfume", "job_id", job.ID, "url", t.url, "error", err)
		res.Status = ItemFailed
		res.Error = err.Error()
		return res, nil
	}

	id := perfume.ID
	res.Status = ItemSaved
	res.PerfumeID = &id
	m.publish(ctx, perfume, job.ID)
	return res, nil
}

// findExisting checks the source URL first and then the brand and title
// pair. Placeholder titles are never matched by name.
func (m *Manager) findExisting(ctx context.Context, rec *models.Record) (*models.Perfume, error) {
	existing, err := m.gateway.FindBySourceURL(ctx, rec.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to check source url: %w", err)
	}
	if existing != nil || rec.Title == parser.UnknownPerfume {
		return existing, nil
	}

	existing, err = m.gateway.FindByBrandAndTitle(ctx, rec.BrandName, rec.Title)
	if err != nil {
		return nil, fmt.Errorf("failed to check brand and title: %w", err)
	}
	return existing, nil
}

func (m *Manager) save(ctx context.Context, rec *models.Record) (*models.Perfume, error) {
	brand, err := m.gateway.FindOrCreateBrand(ctx, rec.BrandName)
	if err != nil {
		return nil, fmt.Errorf("failed to find or create brand: %w", err)
	}
	return m.gateway.CreateRecord(ctx, brand, rec)
}

// commitBatch writes every pending_batch result in one bulk call. Either all
// of them become saved or all of them become failed.
func (m *Manager) commitBatch(ctx context.Context, job *Job, brandName string) {
	m.mu.Lock()
	var indexes []int
	var recs []*models.Record
	for i, r := range job.Results {
		if r.Status == ItemPendingBatch {
			indexes = append(indexes, i)
			recs = append(recs, r.Record)
		}
	}
	m.mu.Unlock()

	if len(recs) == 0 {
		return
	}

	perfumes, err := m.gateway.BulkCreateRecords(ctx, brandName, recs)
	if err == nil && len(perfumes) != len(recs) {
		err = fmt.Errorf("bulk create returned %d perfumes for %d records", len(perfumes), len(recs))
	}

	if err != nil {
		m.logger.Error("batch commit failed", "job_id", job.ID, "records", len(recs), "error", err)
		m.update(job, func(j *Job) {
			for _, i := range indexes {
				j.settle(i, ItemFailed, nil, err.Error())
			}
			j.Message = "batch commit failed"
		})
		for range indexes {
			metrics.ObserveItem(string(ItemFailed))
		}
		return
	}

	m.update(job, func(j *Job) {
		for n, i := range indexes {
			id := perfumes[n].ID
			j.settle(i, ItemSaved, &id, "")
		}
	})

	m.logger.Info("batch committed", "job_id", job.ID, "records", len(recs))
	for _, p := range perfumes {
		metrics.ObserveItem(string(ItemSaved))
		m.publish(ctx, p, job.ID)
	}
}

func (m *Manager) publish(ctx context.Context, perfume *models.Perfume, jobID string) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.PublishPerfumeIngested(ctx, perfume, jobID); err != nil {
		m.logger.Error("failed to publish event", "job_id", jobID, "perfume_id", perfume.ID, "error", err)
	}
}
