package realtime

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ReconnectPolicy computes exponential backoff with jitter between
// reconnect attempts. A limiter additionally caps attempts to one per Base
// interval however many drop events race to trigger them.
type ReconnectPolicy struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int // 0 means retry forever

	limiter *rate.Limiter
	jitter  func() float64

	mu      sync.Mutex
	attempt int
}

func NewReconnectPolicy(base, max time.Duration, maxAttempts int) *ReconnectPolicy {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max < base {
		max = base
	}
	return &ReconnectPolicy{
		Base:        base,
		Max:         max,
		MaxAttempts: maxAttempts,
		limiter:     rate.NewLimiter(rate.Every(base), 1),
		jitter:      rand.Float64,
	}
}

// Next returns the delay before the next attempt, or false once MaxAttempts
// is exhausted. Delays use equal jitter: half fixed, half random.
func (p *ReconnectPolicy) Next() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempt++
	if p.MaxAttempts > 0 && p.attempt > p.MaxAttempts {
		return 0, false
	}
	d := p.Base
	for i := 1; i < p.attempt && d < p.Max; i++ {
		d *= 2
	}
	if d > p.Max {
		d = p.Max
	}
	half := d / 2
	return half + time.Duration(p.jitter()*float64(half)), true
}

// Wait blocks until the limiter admits another attempt.
func (p *ReconnectPolicy) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Reset clears the attempt counter after a successful connect.
func (p *ReconnectPolicy) Reset() {
	p.mu.Lock()
	p.attempt = 0
	p.mu.Unlock()
}

func (p *ReconnectPolicy) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempt
}
