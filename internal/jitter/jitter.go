package jitter

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Pacer produces randomized waits that mimic human pacing.
// All randomness and sleeping goes through a Pacer so tests can swap both.
type Pacer struct {
	mu    sync.Mutex
	rng   *rand.Rand
	sleep SleepFunc
}

// NewPacer creates a pacer seeded from the wall clock
func NewPacer() *Pacer {
	return &Pacer{
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: ContextSleep,
	}
}

// NewPacerWith creates a pacer with an explicit seed and sleep function
func NewPacerWith(seed int64, sleep SleepFunc) *Pacer {
	if sleep == nil {
		sleep = ContextSleep
	}
	return &Pacer{
		rng:   rand.New(rand.NewSource(seed)),
		sleep: sleep,
	}
}

// ContextSleep waits for d, returning early with ctx.Err() when ctx is canceled
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Between returns a uniform duration in [min, max). If max <= min, min is returned.
func (p *Pacer) Between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return min + time.Duration(p.rng.Int63n(int64(max-min)))
}

// IntBetween returns a uniform integer in [min, max] (inclusive)
func (p *Pacer) IntBetween(min, max int) int {
	if max <= min {
		return min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return min + p.rng.Intn(max-min+1)
}

// Sleep waits exactly d through the pacer's sleep function
func (p *Pacer) Sleep(ctx context.Context, d time.Duration) error {
	return p.sleep(ctx, d)
}

// Pause waits a random duration in [min, max)
func (p *Pacer) Pause(ctx context.Context, min, max time.Duration) error {
	return p.sleep(ctx, p.Between(min, max))
}

// Shuffle randomizes the order of n elements in place using swap
func (p *Pacer) Shuffle(n int, swap func(i, j int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rng.Shuffle(n, swap)
}
