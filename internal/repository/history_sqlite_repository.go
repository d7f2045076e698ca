package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/histd/internal/domain"
)

// sqliteTimeLayout is fixed width so that text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// sqliteHistoryRepository implements HistoryRepository on SQLite.
type sqliteHistoryRepository struct {
	db             *sql.DB
	now            func() time.Time
	acquireTimeout time.Duration
}

// SQLiteOption configures the SQLite repository.
type SQLiteOption func(*sqliteHistoryRepository)

// WithClock overrides the clock used for created_at and updated_at.
func WithClock(now func() time.Time) SQLiteOption {
	return func(r *sqliteHistoryRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithAcquireTimeout bounds the wait for a pooled connection.
func WithAcquireTimeout(timeout time.Duration) SQLiteOption {
	return func(r *sqliteHistoryRepository) {
		if timeout > 0 {
			r.acquireTimeout = timeout
		}
	}
}

// NewSQLiteHistoryRepository wires a repository backed by a database/sql
// handle opened with the modernc.org/sqlite driver.
func NewSQLiteHistoryRepository(db *sql.DB, opts ...SQLiteOption) HistoryRepository {
	r := &sqliteHistoryRepository{
		db:             db,
		now:            time.Now,
		acquireTimeout: DefaultAcquireTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *sqliteHistoryRepository) withConn(ctx context.Context, op string, fn func(conn *sql.Conn) error) error {
	if r.db == nil {
		return fmt.Errorf("history repository not initialized")
	}

	acquireCtx, cancel := context.WithTimeout(ctx, r.acquireTimeout)
	conn, err := r.db.Conn(acquireCtx)
	cancel()
	if err != nil {
		return storageError(op, err)
	}
	defer conn.Close()

	if err := fn(conn); err != nil {
		return storageError(op, err)
	}
	return nil
}

func (r *sqliteHistoryRepository) GetByID(ctx context.Context, id int64) (domain.History, bool, error) {
	var (
		history domain.History
		found   bool
	)
	err := r.withConn(ctx, "get history", func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM histories WHERE id = ?`, id)
		scanErr := scanSQLiteHistory(row, &history)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		found = true
		return nil
	})
	if err != nil {
		return domain.History{}, false, err
	}
	return history, found, nil
}

func (r *sqliteHistoryRepository) Search(ctx context.Context, filter domain.HistoryFilter) (domain.SearchResult, error) {
	query := `SELECT ` + historyColumns + ` FROM histories ORDER BY updated_at DESC, id DESC LIMIT ?`
	args := []any{domain.SearchLimit + 1}
	if filter.WorkingDirectory != nil {
		query = `SELECT ` + historyColumns + ` FROM histories
		 WHERE working_directory = ?
		 ORDER BY updated_at DESC, id DESC`
		args = []any{*filter.WorkingDirectory}
	}

	histories := []domain.History{}
	err := r.withConn(ctx, "search histories", func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var history domain.History
			if err := scanSQLiteHistory(rows, &history); err != nil {
				return err
			}
			histories = append(histories, history)
		}
		return rows.Err()
	})
	if err != nil {
		return domain.SearchResult{}, err
	}

	return capResult(histories, filter), nil
}

// Create upserts on the identity key. The clock is read before a connection
// is acquired, so a slower writer may arrive with an older timestamp;
// updated_at therefore only ever moves forward.
func (r *sqliteHistoryRepository) Create(ctx context.Context, history domain.NewHistory) (domain.NewHistory, error) {
	now := r.now().UTC().Format(sqliteTimeLayout)
	err := r.withConn(ctx, "create history", func(conn *sql.Conn) error {
		_, err := conn.ExecContext(
			ctx,
			`INSERT INTO histories (hostname, working_directory, command, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (hostname, working_directory, command)
			 DO UPDATE SET updated_at = max(histories.updated_at, excluded.updated_at)`,
			history.Hostname,
			history.WorkingDirectory,
			history.Command,
			now,
			now,
		)
		return err
	})
	if err != nil {
		return domain.NewHistory{}, err
	}
	return history, nil
}

func (r *sqliteHistoryRepository) Delete(ctx context.Context, id int64) (domain.DeletedHistoryCount, error) {
	var count int64
	err := r.withConn(ctx, "delete history", func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, `DELETE FROM histories WHERE id = ?`, id)
		if err != nil {
			return err
		}
		count, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return domain.DeletedHistoryCount{}, err
	}
	return domain.NewDeletedHistoryCount(count), nil
}

func (r *sqliteHistoryRepository) Ping(ctx context.Context) error {
	return r.withConn(ctx, "ping database", func(conn *sql.Conn) error {
		return conn.PingContext(ctx)
	})
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteHistory(row sqlScanner, history *domain.History) error {
	var (
		workingDirectory sql.NullString
		createdAt        string
		updatedAt        string
	)
	if err := row.Scan(
		&history.ID,
		&history.Hostname,
		&workingDirectory,
		&history.Command,
		&createdAt,
		&updatedAt,
	); err != nil {
		return err
	}

	if workingDirectory.Valid {
		value := workingDirectory.String
		history.WorkingDirectory = &value
	}

	var err error
	if history.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return fmt.Errorf("failed to parse created_at %q: %w", createdAt, err)
	}
	if history.UpdatedAt, err = time.Parse(sqliteTimeLayout, updatedAt); err != nil {
		return fmt.Errorf("failed to parse updated_at %q: %w", updatedAt, err)
	}
	return nil
}
