package fetch

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLimiterClosed is returned by Wait after Close.
var ErrLimiterClosed = errors.New("rate limiter closed")

// RateLimiter is a token bucket refilled at rate tokens per interval.
type RateLimiter struct {
	tokens chan struct{}
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// NewRateLimiter creates a full bucket of rate tokens and starts refilling it.
func NewRateLimiter(rate int, interval time.Duration) *RateLimiter {
	if rate <= 0 {
		rate = 1
	}
	rl := &RateLimiter{
		tokens: make(chan struct{}, rate),
		done:   make(chan struct{}),
	}

	for i := 0; i < rate; i++ {
		rl.tokens <- struct{}{}
	}

	rl.ticker = time.NewTicker(interval / time.Duration(rate))
	go rl.refill()

	return rl
}

// Wait blocks until a token is available, the context ends or the limiter closes.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	select {
	case <-rl.done:
		return ErrLimiterClosed
	default:
	}

	select {
	case <-rl.tokens:
		return nil
	case <-rl.done:
		return ErrLimiterClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the refill goroutine. Safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() {
		rl.ticker.Stop()
		close(rl.done)
	})
}

func (rl *RateLimiter) refill() {
	for {
		select {
		case <-rl.done:
			return
		case <-rl.ticker.C:
			select {
			case rl.tokens <- struct{}{}:
			default:
			}
		}
	}
}
