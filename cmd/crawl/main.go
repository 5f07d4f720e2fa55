package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/fragrance-scraper/internal/browser"
	"github.com/maltedev/fragrance-scraper/internal/config"
	"github.com/maltedev/fragrance-scraper/internal/events"
	"github.com/maltedev/fragrance-scraper/internal/jobs"
	"github.com/maltedev/fragrance-scraper/internal/models"
	"github.com/maltedev/fragrance-scraper/internal/queue"
	"github.com/maltedev/fragrance-scraper/internal/scraper"
	"github.com/maltedev/fragrance-scraper/internal/storage"
)

func main() {
	var (
		perfumeURL = flag.String("url", "", "Perfume detail page URL")
		brandURL   = flag.String("brand-url", "", "Designer listing page URL")
		brandName  = flag.String("brand", "", "Brand name overriding the scraped one when printing a single page")
		storeFile  = flag.String("store", "", "JSON file to store results in; results are printed when empty")
		batchMode  = flag.Bool("batch", false, "Write a brand listing in one atomic batch (requires -store)")
		headless   = flag.Bool("headless", true, "Run browser in headless mode")
	)
	flag.Parse()

	if (*perfumeURL == "") == (*brandURL == "") {
		fmt.Fprintln(os.Stderr, "provide exactly one of -url or -brand-url")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	browserOpts := cfg.BrowserOptions()
	browserOpts.Headless = *headless
	b, err := browser.New(browserOpts, logger)
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	policy := cfg.Policy()
	session := scraper.NewSession(func() (scraper.Page, error) {
		return b.NewPage()
	}, cfg.Guard(), policy, cfg.ScraperOptions(), logger)
	scheduler := queue.NewScheduler(policy, nil, logger)

	var out interface{}
	if *storeFile != "" {
		out, err = crawlToStore(ctx, logger, session, scheduler, *storeFile, *perfumeURL, *brandURL, *batchMode)
	} else {
		out, err = crawlToStdout(ctx, logger, session, scheduler, *perfumeURL, *brandURL, *brandName)
	}
	if err != nil {
		logger.Error("crawl failed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("failed to encode output", "error", err)
		os.Exit(1)
	}
}

// crawlToStore runs a regular job against the file gateway and returns the
// finished job.
func crawlToStore(ctx context.Context, logger *slog.Logger, session *scraper.Session, scheduler *queue.Scheduler, storeFile, perfumeURL, brandURL string, batchMode bool) (*jobs.Job, error) {
	store, err := storage.NewFileStore(storeFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	manager := jobs.NewManager(jobs.NewMemoryRepository(), session, store, events.NewLogPublisher(logger), scheduler, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("job manager shutdown timed out", "error", err)
		}
	}()

	var job *jobs.Job
	if perfumeURL != "" {
		job, err = manager.StartSinglePage(ctx, perfumeURL, true)
	} else {
		job, err = manager.StartBrandListing(ctx, brandURL, true, batchMode)
	}
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := manager.Cancel(context.Background(), job.ID); err != nil {
				logger.Warn("failed to cancel job", "job_id", job.ID, "error", err)
			}
			return manager.Get(context.Background(), job.ID)
		case <-ticker.C:
			current, err := manager.Get(ctx, job.ID)
			if err != nil {
				return nil, err
			}
			if current.Status.Terminal() {
				return current, nil
			}
			logger.Info("crawl progress",
				"job_id", current.ID,
				"progress", current.ProgressPercent,
				"processed", current.ItemsProcessed,
				"total", current.ItemsTotal)
		}
	}
}

// crawlToStdout extracts without persisting anything.
func crawlToStdout(ctx context.Context, logger *slog.Logger, session *scraper.Session, scheduler *queue.Scheduler, perfumeURL, brandURL, brandName string) (interface{}, error) {
	if perfumeURL != "" {
		return session.LoadAndExtract(ctx, perfumeURL, brandName)
	}

	listing, err := session.LoadListing(ctx, brandURL)
	if err != nil {
		return nil, err
	}

	records := make([]*models.Record, 0, len(listing.PerfumeURLs))
	stats, err := scheduler.Run(ctx, listing.PerfumeURLs, func(ctx context.Context, _ int, url string) error {
		rec, err := session.LoadAndExtract(ctx, url, listing.BrandName)
		if err != nil {
			logger.Warn("skipping perfume", "url", url, "error", err)
			return err
		}
		records = append(records, rec)
		return nil
	})
	logger.Info("listing crawled", "brand", listing.BrandName, "dispatched", stats.Dispatched, "failed", stats.Failed)
	if err != nil {
		return nil, err
	}

	return struct {
		Listing *models.BrandListing `json:"listing"`
		Records []*models.Record     `json:"records"`
	}{listing, records}, nil
}
