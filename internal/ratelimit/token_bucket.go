// Package ratelimit bounds how fast a single connection may push frames into
// the relay.
package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// TokenBucket refills at fillRate tokens/sec up to capacityTokens, reading
// time from a Clock so tests can drive it deterministically.
//
// A nil *TokenBucket allows everything.
type TokenBucket struct {
	clock   Clock
	limiter *rate.Limiter
}

// NewTokenBucket returns a bucket that starts full. A non-positive fillRate
// disables limiting.
func NewTokenBucket(clock Clock, capacityTokens, fillRate int64) *TokenBucket {
	if fillRate <= 0 {
		return nil
	}
	if clock == nil {
		clock = RealClock{}
	}
	if capacityTokens <= 0 {
		capacityTokens = fillRate
	}
	return &TokenBucket{
		clock:   clock,
		limiter: rate.NewLimiter(rate.Limit(fillRate), int(capacityTokens)),
	}
}

// NewPerSecond is the common case of a bucket whose burst equals its rate.
func NewPerSecond(clock Clock, perSecond int) *TokenBucket {
	return NewTokenBucket(clock, int64(perSecond), int64(perSecond))
}

// Allow consumes tokens if they are available. tokens <= 0 always succeeds.
func (b *TokenBucket) Allow(tokens int64) bool {
	if b == nil || tokens <= 0 {
		return true
	}
	return b.limiter.AllowN(b.clock.Now(), int(tokens))
}
