package database

import (
	"context"
	"database/sql"
	"log"
	"math/rand"
	"strings"
	"time"
)

const (
	maxRetries = 50
	baseDelay  = 10 * time.Millisecond
	maxDelay   = 25 * time.Millisecond
)

// isRetryableError checks if the error is a retryable SQLite error
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked") ||
		strings.Contains(errStr, "busy")
}

// backoff sleeps before the next attempt, returns ctx.Err() if cancelled meanwhile
func backoff(ctx context.Context, attempt int) error {
	// Exponential backoff with jitter
	delay := time.Duration(attempt+1) * baseDelay
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 2))

	timer := time.NewTimer(delay + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryableExecContext executes a SQL statement with retry logic for lock conflicts
func retryableExecContext(ctx context.Context, db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		result, err = db.ExecContext(ctx, query, args...)
		if !isRetryableError(err) {
			return result, err
		}
		if attempt < maxRetries-1 {
			log.Printf("[WARN] SQLite retry attempt %d/%d for query (first 50 chars): %s... Error: %v",
				attempt+1, maxRetries, truncateString(query, 50), err)
			if berr := backoff(ctx, attempt); berr != nil {
				return nil, berr
			}
		}
	}
	return result, err
}

// retryableQueryRowScanContext executes a QueryRow and Scan with retry logic
func retryableQueryRowScanContext(ctx context.Context, db *sql.DB, query string, args []interface{}, dest ...interface{}) error {
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err = db.QueryRowContext(ctx, query, args...).Scan(dest...)
		if !isRetryableError(err) {
			return err
		}
		if attempt < maxRetries-1 {
			log.Printf("[WARN] SQLite retry attempt %d/%d for QueryRow scan (first 50 chars): %s... Error: %v",
				attempt+1, maxRetries, truncateString(query, 50), err)
			if berr := backoff(ctx, attempt); berr != nil {
				return berr
			}
		}
	}
	return err
}

// retryableQueryContext executes a query that returns multiple rows with retry logic
func retryableQueryContext(ctx context.Context, db *sql.DB, query string, args ...interface{}) (*sql.Rows, error) {
	var rows *sql.Rows
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		rows, err = db.QueryContext(ctx, query, args...)
		if !isRetryableError(err) {
			return rows, err
		}
		if attempt < maxRetries-1 {
			log.Printf("[WARN] SQLite retry attempt %d/%d for query (first 50 chars): %s... Error: %v",
				attempt+1, maxRetries, truncateString(query, 50), err)
			if berr := backoff(ctx, attempt); berr != nil {
				return nil, berr
			}
		}
	}
	return rows, err
}

// retryableTransactionExec runs txFunc in a transaction, retrying the whole
// transaction on lock conflicts
func retryableTransactionExec(ctx context.Context, db *sql.DB, txFunc func(*sql.Tx) error) error {
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		var tx *sql.Tx
		tx, err = db.BeginTx(ctx, nil)
		if err == nil {
			err = txFunc(tx)
			if err != nil {
				tx.Rollback()
			} else {
				err = tx.Commit()
			}
		}
		if !isRetryableError(err) {
			return err
		}
		if attempt < maxRetries-1 {
			log.Printf("[WARN] SQLite retry attempt %d/%d for transaction: %v", attempt+1, maxRetries, err)
			if berr := backoff(ctx, attempt); berr != nil {
				return berr
			}
		}
	}
	return err
}

// truncateString truncates a string to the specified length
func truncateString(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length]
}
