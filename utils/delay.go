package utils

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Jitter is a seedable source of randomness shared by the sessions and tasks
// of one scraper. It is safe for concurrent use.
type Jitter struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewJitter creates a Jitter. A zero seed seeds from the clock.
func NewJitter(seed int64) *Jitter {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Jitter{rng: rand.New(rand.NewSource(seed))}
}

// Duration returns a duration drawn uniformly from [min, max]
func (j *Jitter) Duration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return min + time.Duration(j.rng.Int63n(int64(max-min)+1))
}

// Intn returns a random int in [0, n)
func (j *Jitter) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rng.Intn(n)
}

// IntRange returns a random int in [min, max]
func (j *Jitter) IntRange(min, max int) int {
	if max <= min {
		return min
	}
	return min + j.Intn(max-min+1)
}

// RandomDelay sleeps for a random duration between min and max, returning
// early with the context error if ctx ends first.
func (j *Jitter) RandomDelay(ctx context.Context, min, max time.Duration) error {
	return Sleep(ctx, j.Duration(min, max))
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
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
