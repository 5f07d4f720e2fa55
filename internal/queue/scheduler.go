// Package queue paces a list of crawl targets into randomized batches.
package queue

import (
	"context"
	"errors"
	"log/slog"

	"github.com/maltedev/fragrance-scraper/internal/metrics"
	"github.com/maltedev/fragrance-scraper/internal/ratelimit"
)

// Handler processes one target. Returning an error wrapping
// ratelimit.ErrRateLimited makes the scheduler insert a cooldown.
type Handler func(ctx context.Context, index int, url string) error

// Stats summarizes one Run.
type Stats struct {
	Dispatched int `json:"dispatched"`
	Failed     int `json:"failed"`
	Delays     int `json:"delays"`
	Cooldowns  int `json:"cooldowns"`
	Batches    int `json:"batches"`
}

// Scheduler hands targets to a handler one at a time. Failed targets are
// never retried here.
type Scheduler struct {
	policy *ratelimit.Policy
	sleep  ratelimit.SleepFunc
	logger *slog.Logger
}

func NewScheduler(policy *ratelimit.Policy, sleep ratelimit.SleepFunc, logger *slog.Logger) *Scheduler {
	if policy == nil {
		policy = ratelimit.DefaultPolicy()
	}
	if sleep == nil {
		sleep = ratelimit.Sleep
	}
	return &Scheduler{
		policy: policy,
		sleep:  sleep,
		logger: logger.With("component", "scheduler"),
	}
}

// Run dispatches urls in order. ctx is checked before every item; once it is
// done no further item starts and its error is returned. An item already
// handed to the handler is not interrupted by the scheduler.
func (s *Scheduler) Run(ctx context.Context, urls []string, handle Handler) (Stats, error) {
	var stats Stats
	if len(urls) == 0 {
		return stats, nil
	}

	batchSize := s.policy.BatchSize()
	inBatch := 0
	stats.Batches = 1

	for i, url := range urls {
		if err := ctx.Err(); err != nil {
			s.logger.Info("run cancelled", "dispatched", stats.Dispatched, "remaining", len(urls)-i)
			return stats, err
		}

		stats.Dispatched++
		inBatch++
		err := handle(ctx, i, url)
		if err != nil {
			stats.Failed++
		}

		last := i == len(urls)-1
		if last {
			break
		}

		if errors.Is(err, ratelimit.ErrRateLimited) {
			stats.Cooldowns++
			s.logger.Warn("rate limited, cooling down", "url", url, "cooldown", s.policy.Cooldown)
			metrics.ObserveDelay("cooldown", s.policy.Cooldown)
			if err := s.sleep(ctx, s.policy.Cooldown); err != nil {
				return stats, err
			}
		}

		delay, reason := s.policy.ItemDelay(), "item"
		if inBatch >= batchSize {
			reason = "batch"
			delay = s.policy.BatchDelay()
			s.logger.Info("batch finished, pausing",
				"batch", stats.Batches,
				"size", inBatch,
				"pause", delay)
			batchSize = s.policy.BatchSize()
			inBatch = 0
			stats.Batches++
		}

		stats.Delays++
		metrics.ObserveDelay(reason, delay)
		if err := s.sleep(ctx, delay); err != nil {
			return stats, err
		}
	}

	return stats, nil
}
