package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite"
)

// sqlitePragmas are applied to every connection the pool opens.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"foreign_keys(1)",
}

// OpenSQLite opens a SQLite database at path (or a file: URI) and verifies it.
func OpenSQLite(ctx context.Context, config Config) (*sql.DB, error) {
	dsn, err := sqliteDSN(config.URL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if config.MaxConns > 0 {
		db.SetMaxOpenConns(int(config.MaxConns))
	}
	if config.MinConns > 0 {
		db.SetMaxIdleConns(int(config.MinConns))
	}
	if config.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(config.MaxConnLifetime)
	}
	if config.MaxConnIdleTime > 0 {
		db.SetConnMaxIdleTime(config.MaxConnIdleTime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.acquireTimeout())
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return db, nil
}

// ErrSQLiteInMemory is returned for in-memory databases: every pooled
// connection would see its own empty database, so migrations never reach the
// connections serving requests.
var ErrSQLiteInMemory = errors.New("in-memory sqlite databases are not supported, use a file path")

// IsInMemorySQLite reports whether raw names an in-memory SQLite database.
func IsInMemorySQLite(raw string) bool {
	path := strings.TrimPrefix(strings.TrimPrefix(raw, "sqlite://"), "sqlite:")
	path = strings.TrimPrefix(path, "file:")
	if strings.HasPrefix(path, ":memory:") {
		return true
	}
	if idx := strings.Index(path, "?"); idx >= 0 {
		query, err := url.ParseQuery(path[idx+1:])
		if err == nil && query.Get("mode") == "memory" {
			return true
		}
	}
	return false
}

func sqliteDSN(raw string) (string, error) {
	path := strings.TrimPrefix(strings.TrimPrefix(raw, "sqlite://"), "sqlite:")
	if path == "" {
		return "", fmt.Errorf("sqlite database path is empty")
	}
	if IsInMemorySQLite(path) {
		return "", ErrSQLiteInMemory
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}

	query := url.Values{}
	if idx := strings.Index(path, "?"); idx >= 0 {
		parsed, err := url.ParseQuery(path[idx+1:])
		if err != nil {
			return "", fmt.Errorf("invalid sqlite dsn %q: %w", raw, err)
		}
		query = parsed
		path = path[:idx]
	}
	if _, ok := query["_pragma"]; !ok {
		for _, pragma := range sqlitePragmas {
			query.Add("_pragma", pragma)
		}
	}

	return path + "?" + query.Encode(), nil
}
