// Package wait provides the bounded polling primitive every browser-facing
// layer of the harness synchronises through.
package wait

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultTimeout bounds every wait in the harness.
	DefaultTimeout = 3 * time.Second
	// DefaultInterval is the delay between two polls of a condition.
	DefaultInterval = 100 * time.Millisecond
)

// errNotYet marks a poll whose result was falsy.
var errNotYet = errors.New("condition not met yet")

// TimeoutError is returned when a condition never became truthy.
type TimeoutError struct {
	Message string
	Timeout time.Duration
	// Last is the error returned by the final poll. It is nil when that
	// poll returned a falsy value without error.
	Last error
}

func (e *TimeoutError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("%s (timed out after %s: %v)", e.Message, e.Timeout, e.Last)
	}
	return fmt.Sprintf("%s (timed out after %s)", e.Message, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.Last
}

// IsTimeout reports whether err is, or wraps, a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

type stopError struct {
	err error
}

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Stop wraps err so that Until returns it immediately instead of polling again.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// Waiter carries the timeout and poll interval shared by a harness.
type Waiter struct {
	Timeout  time.Duration
	Interval time.Duration
}

// Default returns a Waiter using DefaultTimeout and DefaultInterval.
func Default() Waiter {
	return Waiter{Timeout: DefaultTimeout, Interval: DefaultInterval}
}

// New returns a Waiter with the given timeout and the default interval.
func New(timeout time.Duration) Waiter {
	return Waiter{Timeout: timeout, Interval: DefaultInterval}
}

func (w Waiter) normalized() Waiter {
	if w.Timeout <= 0 {
		w.Timeout = DefaultTimeout
	}
	if w.Interval <= 0 {
		w.Interval = DefaultInterval
	}
	return w
}

// Condition polls a boolean condition. It is the non-generic form of Until.
func (w Waiter) Condition(ctx context.Context, message string, fn func(ctx context.Context) (bool, error)) error {
	_, err := Until(ctx, w, message, fn)
	return err
}

// Until polls fn until it returns a truthy value with a nil error, and
// returns that value. Zero values, empty slices, maps and strings are falsy.
// Errors returned by fn are retried unless wrapped with Stop. When the
// waiter's timeout elapses a *TimeoutError carrying message is returned;
// cancellation of ctx itself is reported as ctx.Err().
func Until[T any](ctx context.Context, w Waiter, message string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	w = w.normalized()

	pollCtx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()

	var (
		last    error
		stopped bool
	)
	operation := func() (T, error) {
		v, err := fn(pollCtx)
		if err != nil {
			var se *stopError
			if errors.As(err, &se) {
				stopped = true
				return zero, backoff.Permanent(se.err)
			}
			last = err
			return zero, err
		}
		if !truthy(v) {
			last = nil
			return zero, errNotYet
		}
		return v, nil
	}

	v, err := backoff.Retry(pollCtx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(w.Interval)),
		backoff.WithMaxElapsedTime(w.Timeout),
	)
	if err == nil {
		return v, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, ctxErr
	}
	if stopped {
		return zero, err
	}
	return zero, &TimeoutError{Message: message, Timeout: w.Timeout, Last: last}
}

func truthy(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return false
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.String, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	default:
		return !rv.IsZero()
	}
}
