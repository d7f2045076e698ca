package repository

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrStorageUnavailable covers exhausted pools and unreachable databases.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrConstraintViolation is an integrity violation the upsert did not absorb.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrStorage is any other storage failure.
	ErrStorage = errors.New("storage failure")
)

// StorageError wraps a driver error with the operation that failed and its kind.
type StorageError struct {
	Op   string
	Kind error
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the driver error to errors.Is/As.
func (e *StorageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Kind: classify(err), Err: err}
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrStorageUnavailable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPostgres(pgErr.Code)
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return classifySQLite(sqliteErr.Code())
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) {
		return ErrStorageUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrStorageUnavailable
	}

	return ErrStorage
}

// classifyPostgres maps SQLSTATE codes onto error kinds.
func classifyPostgres(code string) error {
	if len(code) < 2 {
		return ErrStorage
	}
	switch code[:2] {
	case "08", "53":
		// connection exception, insufficient resources
		return ErrStorageUnavailable
	case "23":
		return ErrConstraintViolation
	}
	switch code {
	case "57P01", "57P02", "57P03":
		return ErrStorageUnavailable
	}
	return ErrStorage
}

func classifySQLite(code int) error {
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN:
		return ErrStorageUnavailable
	case sqlite3.SQLITE_CONSTRAINT:
		return ErrConstraintViolation
	}
	return ErrStorage
}
