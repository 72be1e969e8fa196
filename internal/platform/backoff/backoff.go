package backoff

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy describes a bounded exponential backoff: Initial, 2*Initial,
// 4*Initial, ... capped at Max, with +/-20% jitter per sleep.
type Policy struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
}

func Default() Policy {
	return Policy{MaxRetries: 3, Initial: 1 * time.Second, Max: 10 * time.Second}
}

// Hint lets an error dictate a minimum wait before the next attempt,
// e.g. a Retry-After header from a rate-limited upstream.
type Hint interface {
	RetryAfter() time.Duration
}

// Retry runs fn up to p.MaxRetries+1 times. A non-retryable error or a
// canceled context stops the loop immediately; the last error is returned
// when attempts are exhausted.
func Retry(ctx context.Context, p Policy, retryable func(error) bool, fn func(context.Context) error) error {
	sleep := p.Initial
	if sleep <= 0 {
		sleep = 1 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxRetries {
			return lastErr
		}

		d := sleep
		if p.Max > 0 && d > p.Max {
			d = p.Max
		}
		var hint Hint
		if errors.As(lastErr, &hint) {
			if after := hint.RetryAfter(); after > d {
				d = after
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(d)):
		}
		sleep *= 2
	}
	return lastErr
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := base.Seconds() * 0.2
	low := base.Seconds() - delta
	if low < 0 {
		low = 0
	}
	high := base.Seconds() + delta
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}
