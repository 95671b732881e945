package backoff

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Exponential computes delays of base*2^(n-1) capped at max, with optional
// symmetric jitter expressed as a fraction of the delay.
// Not safe for concurrent use; each loop owns its own instance.
type Exponential struct {
	base     time.Duration
	max      time.Duration
	jitter   float64
	attempts int

	// random returns a value in [0, 1)
	random func() float64
}

// NewExponential creates an exponential backoff
func NewExponential(base, max time.Duration, jitter float64) *Exponential {
	return &Exponential{
		base:   base,
		max:    max,
		jitter: jitter,
		random: rand.Float64,
	}
}

// Next records an attempt and returns the delay before the next one
func (b *Exponential) Next() time.Duration {
	b.attempts++
	delay := capped(b.base, b.max, b.attempts)
	if b.jitter > 0 {
		span := float64(delay) * b.jitter
		delay = time.Duration(float64(delay) + (b.random()*2-1)*span)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

// Reset restores the first-attempt delay
func (b *Exponential) Reset() {
	b.attempts = 0
}

// Attempts returns the number of attempts since the last reset
func (b *Exponential) Attempts() int {
	return b.attempts
}

// Keyed tracks failures per key and the time before which the key should be skipped
type Keyed[K comparable] struct {
	base time.Duration
	max  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	attempts map[K]int
	until    map[K]time.Time
}

// NewKeyed creates a keyed backoff
func NewKeyed[K comparable](base, max time.Duration) *Keyed[K] {
	return &Keyed[K]{
		base:     base,
		max:      max,
		now:      time.Now,
		attempts: make(map[K]int),
		until:    make(map[K]time.Time),
	}
}

// WithClock replaces the time source
func (b *Keyed[K]) WithClock(now func() time.Time) *Keyed[K] {
	b.now = now
	return b
}

// ShouldSkip reports whether key is still inside its backoff window
func (b *Keyed[K]) ShouldSkip(key K) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	until, ok := b.until[key]
	return ok && b.now().Before(until)
}

// RecordFailure increments the attempt count for key and returns the new delay
func (b *Keyed[K]) RecordFailure(key K) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts[key]++
	delay := capped(b.base, b.max, b.attempts[key])
	b.until[key] = b.now().Add(delay)
	return delay
}

// Reset clears the state of key
func (b *Keyed[K]) Reset(key K) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.attempts, key)
	delete(b.until, key)
}

// NextReadyAt returns the end of the backoff window for key
func (b *Keyed[K]) NextReadyAt(key K) (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	until, ok := b.until[key]
	return until, ok
}

func capped(base, max time.Duration, attempts int) time.Duration {
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
