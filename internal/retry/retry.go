package retry

import (
	"context"
	"time"
)

// Policy bounds an exponential backoff loop.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Startup is used while waiting for storage to come up in a fresh container.
var Startup = Policy{Attempts: 10, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}

// Do calls fn until it succeeds, the attempts are used up or ctx is done.
// onRetry, when set, sees every failed attempt that will be retried.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := p.BaseDelay
	for i := 1; i <= attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		if onRetry != nil {
			onRetry(i, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
