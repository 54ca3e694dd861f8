// Package throttle enforces a minimum spacing between upstream calls.
package throttle

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle admits one caller per interval. It is shared by every request of
// a handler, so concurrent callers are admitted one interval apart in arrival
// order. It gives no feedback to callers beyond the wait itself.
type Throttle struct {
	limiter *rate.Limiter
}

// New returns a Throttle with the given minimum interval. A non-positive
// interval disables waiting.
func New(interval time.Duration) *Throttle {
	t := &Throttle{}
	if interval > 0 {
		t.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return t
}

// Wait suspends the caller until its turn. It returns early with the
// context's error if ctx is done first; the turn is then given back.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.limiter == nil {
		return ctx.Err()
	}
	return t.limiter.Wait(ctx)
}
