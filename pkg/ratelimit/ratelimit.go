// Package ratelimit bounds the frequency of governed operations.
package ratelimit

import (
	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/warden/pkg/faults"
)

// Limiter is a token-bucket guard over a named operation class. Hit never
// blocks; an exhausted budget is an immediate structured failure.
type Limiter struct {
	name    string
	limiter *rate.Limiter
}

// New creates a limiter allowing maxEvents per window, with bursts up to
// maxEvents.
func New(name string, maxEvents int, windowSeconds int) *Limiter {
	if maxEvents < 1 {
		maxEvents = 1
	}
	if windowSeconds < 1 {
		windowSeconds = 1
	}
	perSecond := rate.Limit(float64(maxEvents) / float64(windowSeconds))
	return &Limiter{name: name, limiter: rate.NewLimiter(perSecond, maxEvents)}
}

// Hit consumes one event or fails closed.
func (l *Limiter) Hit() error {
	if !l.limiter.Allow() {
		return faults.RateLimit("%s rate limit exceeded", l.name)
	}
	return nil
}
