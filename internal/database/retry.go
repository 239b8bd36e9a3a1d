package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatsend/internal/retry"
)

// retryableDBOperation runs operation with the store's backoff, retrying only
// transient SQLite errors.
func (d *Database) retryableDBOperation(ctx context.Context, operation func() error, operationName string) error {
	err := d.backoff.RetryWithPredicate(ctx, operation, isRetryableDBError)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if !isRetryableDBError(err) {
		return fmt.Errorf("%s failed (non-retryable): %w", operationName, err)
	}
	return fmt.Errorf("%s failed after retries: %w", operationName, err)
}

func newBackoff(limit int) *retry.Backoff {
	cfg := retry.DefaultBackoffConfig()
	if limit > 0 {
		cfg.MaxAttempts = limit
	}
	return retry.NewBackoff(cfg)
}

// isRetryableDBError determines if a database error is worth retrying
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := err.Error()

	if strings.Contains(errStr, "database is locked") || strings.Contains(errStr, "database table is locked") {
		return true
	}

	// Disk I/O errors might be transient
	if strings.Contains(errStr, "disk I/O error") {
		return true
	}

	if strings.Contains(errStr, "UNIQUE constraint") || strings.Contains(errStr, "FOREIGN KEY constraint") {
		return false
	}

	if strings.Contains(errStr, "no such table") || strings.Contains(errStr, "no such column") {
		return false
	}

	return false
}
