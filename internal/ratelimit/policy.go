package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrRateLimited is returned when the target site rejected a request
// through its page content rather than a transport error.
var ErrRateLimited = errors.New("rate limited")

// Source is the random source used by a Policy. *rand.Rand satisfies it.
type Source interface {
	Int63n(n int64) int64
	Float64() float64
}

type globalSource struct{}

func (globalSource) Int63n(n int64) int64 { return rand.Int63n(n) }
func (globalSource) Float64() float64     { return rand.Float64() }

// Policy is the pacing used against the target site: short randomized
// delays between items, long randomized delays between batches, and a
// fixed cooldown whenever a block is detected.
type Policy struct {
	ItemDelayMin  time.Duration
	ItemDelayMax  time.Duration
	BatchDelayMin time.Duration
	BatchDelayMax time.Duration
	BatchSizeMin  int
	BatchSizeMax  int

	// Cooldown does not grow with consecutive blocks.
	Cooldown time.Duration

	// RetryStep is multiplied by the attempt number between failed attempts.
	RetryStep   time.Duration
	MaxAttempts int

	DetourChance   float64
	DetourDwellMin time.Duration
	DetourDwellMax time.Duration

	Rand Source
}

func DefaultPolicy() *Policy {
	return &Policy{
		ItemDelayMin:   3 * time.Second,
		ItemDelayMax:   8 * time.Second,
		BatchDelayMin:  8 * time.Minute,
		BatchDelayMax:  12 * time.Minute,
		BatchSizeMin:   15,
		BatchSizeMax:   18,
		Cooldown:       10 * time.Minute,
		RetryStep:      time.Second,
		MaxAttempts:    3,
		DetourChance:   0.05,
		DetourDwellMin: 2 * time.Second,
		DetourDwellMax: 5 * time.Second,
	}
}

func (p *Policy) ItemDelay() time.Duration {
	return p.between(p.ItemDelayMin, p.ItemDelayMax)
}

func (p *Policy) BatchDelay() time.Duration {
	return p.between(p.BatchDelayMin, p.BatchDelayMax)
}

func (p *Policy) DetourDwell() time.Duration {
	return p.between(p.DetourDwellMin, p.DetourDwellMax)
}

// BatchSize draws a size in [BatchSizeMin, BatchSizeMax]. It is never below 1.
func (p *Policy) BatchSize() int {
	lo, hi := p.BatchSizeMin, p.BatchSizeMax
	if lo < 1 {
		lo = 1
	}
	if hi <= lo {
		return lo
	}
	return lo + int(p.source().Int63n(int64(hi-lo+1)))
}

// RetryDelay is the linear backoff before the attempt after the given one.
func (p *Policy) RetryDelay(attempt int) time.Duration {
	return time.Duration(attempt) * p.RetryStep
}

func (p *Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p *Policy) ShouldDetour() bool {
	if p.DetourChance <= 0 {
		return false
	}
	return p.source().Float64() < p.DetourChance
}

// Pick returns a random index in [0, n).
func (p *Policy) Pick(n int) int {
	if n <= 1 {
		return 0
	}
	return int(p.source().Int63n(int64(n)))
}

func (p *Policy) between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	delta := max - min
	jitter := time.Duration(p.source().Int63n(int64(delta)))
	return min + jitter
}

func (p *Policy) source() Source {
	if p.Rand == nil {
		return globalSource{}
	}
	return p.Rand
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
