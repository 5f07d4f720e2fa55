package ratelimit

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fixedSource struct {
	n int64
	f float64
}

func (s fixedSource) Int63n(n int64) int64 {
	if s.n >= n {
		return n - 1
	}
	return s.n
}

func (s fixedSource) Float64() float64 { return s.f }

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 3*time.Second, p.ItemDelayMin)
	assert.Equal(t, 8*time.Second, p.ItemDelayMax)
	assert.Equal(t, 8*time.Minute, p.BatchDelayMin)
	assert.Equal(t, 12*time.Minute, p.BatchDelayMax)
	assert.Equal(t, 15, p.BatchSizeMin)
	assert.Equal(t, 18, p.BatchSizeMax)
	assert.Equal(t, 10*time.Minute, p.Cooldown)
	assert.Equal(t, 3, p.MaxAttempts)
	assert.InDelta(t, 0.05, p.DetourChance, 0.0001)
}

func TestPolicy_RangesStayInBounds(t *testing.T) {
	p := DefaultPolicy()
	p.Rand = rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		item := p.ItemDelay()
		assert.GreaterOrEqual(t, item, p.ItemDelayMin)
		assert.Less(t, item, p.ItemDelayMax)

		batch := p.BatchDelay()
		assert.GreaterOrEqual(t, batch, p.BatchDelayMin)
		assert.Less(t, batch, p.BatchDelayMax)

		size := p.BatchSize()
		assert.GreaterOrEqual(t, size, 15)
		assert.LessOrEqual(t, size, 18)
	}
}

func TestPolicy_BatchSizeUsesWholeRange(t *testing.T) {
	p := DefaultPolicy()

	p.Rand = fixedSource{n: 0}
	assert.Equal(t, 15, p.BatchSize())

	p.Rand = fixedSource{n: 100}
	assert.Equal(t, 18, p.BatchSize())
}

func TestPolicy_DegenerateRanges(t *testing.T) {
	p := &Policy{ItemDelayMin: 2 * time.Second, ItemDelayMax: time.Second}
	assert.Equal(t, 2*time.Second, p.ItemDelay())

	assert.Equal(t, 1, p.BatchSize())
	assert.Equal(t, 1, p.Attempts())
	assert.Equal(t, time.Duration(0), p.BatchDelay())
}

func TestPolicy_RetryDelayIsLinear(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, time.Second, p.RetryDelay(1))
	assert.Equal(t, 2*time.Second, p.RetryDelay(2))
	assert.Equal(t, 3*time.Second, p.RetryDelay(3))
}

func TestPolicy_ShouldDetour(t *testing.T) {
	p := DefaultPolicy()

	p.Rand = fixedSource{f: 0.01}
	assert.True(t, p.ShouldDetour())

	p.Rand = fixedSource{f: 0.5}
	assert.False(t, p.ShouldDetour())

	p.DetourChance = 0
	p.Rand = fixedSource{f: 0}
	assert.False(t, p.ShouldDetour())
}

func TestPolicy_Pick(t *testing.T) {
	p := &Policy{Rand: fixedSource{n: 2}}

	assert.Equal(t, 2, p.Pick(5))
	assert.Equal(t, 0, p.Pick(1))
	assert.Equal(t, 0, p.Pick(0))
}

func TestSleep(t *testing.T) {
	t.Run("zero duration returns immediately", func(t *testing.T) {
		assert.NoError(t, Sleep(context.Background(), 0))
	})

	t.Run("cancelled context interrupts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		start := time.Now()
		err := Sleep(ctx, time.Hour)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("short sleep completes", func(t *testing.T) {
		assert.NoError(t, Sleep(context.Background(), time.Millisecond))
	})
}
