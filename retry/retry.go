package retry

import (
	"context"
	"math/rand"
	"time"
)

type options struct {
	maxRetries int
	baseWait   time.Duration
	maxWait    time.Duration
	jitter     bool
}

// Option configures a Do call.
type Option func(*options)

// WithMaxRetries sets how many times the function is retried after the first
// attempt. Zero means a single attempt with no retries.
func WithMaxRetries(n int) Option {
	return func(o *options) { o.maxRetries = n }
}

// WithBaseWait sets the wait before the first retry. Each subsequent wait
// doubles, capped by WithMaxWait.
func WithBaseWait(d time.Duration) Option {
	return func(o *options) { o.baseWait = d }
}

// WithMaxWait caps the exponential backoff delay.
func WithMaxWait(d time.Duration) Option {
	return func(o *options) { o.maxWait = d }
}

// WithJitter randomizes each wait between half and the full backoff delay.
func WithJitter(enabled bool) Option {
	return func(o *options) { o.jitter = enabled }
}

// Do runs fn, retrying recoverable failures with exponential backoff until
// the retry budget is exhausted or ctx is done. The last error is returned
// unwrapped. Non-recoverable errors return immediately.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	o := options{
		maxRetries: 3,
		baseWait:   time.Second,
		maxWait:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsRecoverable(err) || attempt >= o.maxRetries {
			return err
		}
		wait := o.baseWait << attempt
		if o.maxWait > 0 && wait > o.maxWait {
			wait = o.maxWait
		}
		if o.jitter && wait > 0 {
			wait = wait/2 + time.Duration(rand.Int63n(int64(wait/2)+1))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
