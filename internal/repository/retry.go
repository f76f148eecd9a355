package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
)

// RetryPolicy bounds how often a single store call is repeated when the
// driver reports transient contention.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries a transient failure three times within a few
// hundred milliseconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialInterval: 20 * time.Millisecond, MaxInterval: 200 * time.Millisecond}
}

// Run calls op until it succeeds, fails with a non-transient error, or the
// policy is exhausted.
func (p RetryPolicy) Run(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.Retry(func() error {
		err := op()
		if err == nil || isTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx))
}

// PostgreSQL SQLSTATEs worth retrying.
var transientPGCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

func isTransient(err error) bool {
	var pge *pgconn.PgError
	if errors.As(err, &pge) {
		return transientPGCodes[pge.Code]
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// isUniqueViolation reports PostgreSQL 23505 or the SQLite equivalent.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pge *pgconn.PgError
	if errors.As(err, &pge) {
		return pge.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
