package main

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/angelmondragon/vertical-shop/pkg/config"
	"github.com/angelmondragon/vertical-shop/pkg/outbox/registry"
)

const jitterWindow = 50 * time.Millisecond

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

// retryPolicy decides how many publish attempts one relay pass makes for a message.
type retryPolicy interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

// singleAttempt publishes once; a failure is final.
type singleAttempt struct{}

func (singleAttempt) Do(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// boundedBackoff retries within the same batch with capped exponential delays.
// Messages are still marked terminal once the attempts run out, or as soon as
// shutdown interrupts a wait.
type boundedBackoff struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleep       func(context.Context, time.Duration) error
	jitter      func(time.Duration) time.Duration
}

func newRetryPolicy(cfg config.OutboxConfig) retryPolicy {
	if cfg.RetryMaxAttempts <= 1 {
		return singleAttempt{}
	}
	base := cfg.RetryBaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	maxDelay := cfg.RetryMaxDelay
	if maxDelay < base {
		maxDelay = base
	}
	return &boundedBackoff{
		maxAttempts: cfg.RetryMaxAttempts,
		baseDelay:   base,
		maxDelay:    maxDelay,
		sleep:       sleepContext,
		jitter:      withJitter,
	}
}

func (b *boundedBackoff) Do(ctx context.Context, fn func(context.Context) error) error {
	delay := b.baseDelay
	var err error
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		var nonRetry registry.NonRetryableError
		if errors.As(err, &nonRetry) || attempt == b.maxAttempts {
			return err
		}
		if sleepErr := b.sleep(waitContext(ctx), b.jitter(delay)); sleepErr != nil {
			return err
		}
		delay = nextBackoff(delay, b.baseDelay, b.maxDelay)
	}
	return err
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}

type runContextKey struct{}

// withRunContext records the relay's run context on a batch context that has
// been detached from cancellation, so retry waits still end at shutdown.
func withRunContext(batch, run context.Context) context.Context {
	return context.WithValue(batch, runContextKey{}, run)
}

func waitContext(ctx context.Context) context.Context {
	if run, ok := ctx.Value(runContextKey{}).(context.Context); ok {
		return run
	}
	return ctx
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
