// Package ratelimit provides the process-wide request budgets shared by every
// outbound call. One limiter gates generation, parse, classification and
// judge calls; a separate, smaller one gates embedding calls. Both are built
// once at startup and injected, never read from globals.
package ratelimit

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// Limiter blocks until one request may proceed or ctx is done.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Limiters groups the two budgets.
type Limiters struct {
	LLM   Limiter
	Embed Limiter
}

// New returns limiters allowing llmRPS and embedRPS requests per second.
// A non-positive rate disables the corresponding limiter.
func New(llmRPS, embedRPS float64) Limiters {
	return Limiters{LLM: PerSecond(llmRPS), Embed: PerSecond(embedRPS)}
}

// PerSecond returns a token bucket refilling at rps with a burst of
// max(1, floor(rps)), so a 4 rps budget admits at most four requests in any
// one-second window.
func PerSecond(rps float64) Limiter {
	if rps <= 0 {
		return Unlimited()
	}
	burst := int(math.Floor(rps))
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Unlimited returns a limiter that never blocks. Tests use it to keep fakes
// deterministic.
func Unlimited() Limiter {
	return rate.NewLimiter(rate.Inf, 0)
}
