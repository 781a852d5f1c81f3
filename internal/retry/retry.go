// Package retry implements the backoff policy applied to every remote
// call. Transient failures (rate limiting, server unavailability) are
// retried with exponential jittered delays up to a ceiling; anything
// else propagates immediately.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

// Policy describes how a remote call is retried. The zero value is not
// usable; construct with NewPolicy or fill every field.
type Policy struct {
	// MaxAttempts is the total number of tries, including the
	// first. Must be at least 1.
	MaxAttempts int

	// BaseDelay is the sleep after the first failed attempt. Each
	// subsequent failure doubles it, capped at MaxDelay.
	BaseDelay time.Duration

	// MaxDelay caps the per-attempt sleep.
	MaxDelay time.Duration
}

// NewPolicy returns a Policy with the package defaults for delay
// shaping and the given attempt ceiling.
func NewPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Second,
		MaxDelay:    64 * time.Second,
	}
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Cause() error  { return e.err }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable under a Policy. A nil err returns
// nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err}
}

// IsTransient reports whether err, anywhere in its chain, was marked
// with Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// Do runs op until it succeeds, returns a non-transient error, or the
// attempt ceiling is reached. Sleeps between attempts honor ctx
// cancellation. When the ceiling is exhausted the last transient error
// is returned wrapped, still satisfying IsTransient.
func (p Policy) Do(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay(attempt)):
			}
		}
		err = op()
		if err == nil || !IsTransient(err) {
			return err
		}
	}
	return errors.Wrapf(err, "giving up after %d attempts", p.MaxAttempts)
}

// delay returns the jittered sleep before the given attempt (1-based
// for the first retry). Equal jitter: half the exponential backoff is
// fixed, half uniformly random, so concurrent workers spread out
// without ever retrying immediately.
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	half := int64(d / 2)
	return time.Duration(half + rand.Int63n(half+1))
}
