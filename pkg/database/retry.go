package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/lib/pq"
)

// ErrUnavailable marks a store call that kept failing with transient errors.
var ErrUnavailable = errors.New("store unavailable")

// ErrCommitUnknown marks a COMMIT that failed without a verdict from the server.
// The transaction may have been applied, so the call is never retried.
var ErrCommitUnknown = errors.New("commit outcome unknown")

// CommitError wraps an error returned by COMMIT.
func CommitError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrCommitUnknown, err)
}

// RetryPolicy bounds a store call with a per-attempt timeout and a backoff between attempts.
type RetryPolicy struct {
	Timeout     time.Duration
	Backoff     time.Duration
	MaxAttempts int
}

// Do runs fn until it succeeds, fails with a non-transient error, or attempts run out.
// Exhausted transient failures are returned wrapped with ErrUnavailable.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := p.attempt(ctx, fn)
		if err != nil && (ctx.Err() != nil || !IsTransient(err)) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(p.backOff()), backoff.WithMaxTries(uint(attempts)))
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && IsTransient(err) {
		return errors.Join(ErrUnavailable, err)
	}
	return err
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Backoff
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.Reset()
	return b
}

func (p RetryPolicy) attempt(ctx context.Context, fn func(context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(callCtx)
}

// IsTransient reports whether err is worth retrying: dropped connections, timeouts,
// Postgres connection exceptions (class 08), admin shutdown and serialization failures.
// A failed COMMIT never is, whatever caused it.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrCommitUnknown) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "08":
			return true
		case pqErr.Code == "57P01", pqErr.Code == "40001", pqErr.Code == "40P01":
			return true
		}
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
