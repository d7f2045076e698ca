package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/histd/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const historyColumns = `id, hostname, working_directory, command, created_at, updated_at`

// DefaultAcquireTimeout bounds how long an operation waits for a pooled connection.
const DefaultAcquireTimeout = 5 * time.Second

// historyRepository implements HistoryRepository on Postgres.
type historyRepository struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
}

// NewHistoryRepository wires a Postgres repository backed by pgxpool.
// A non-positive acquireTimeout falls back to DefaultAcquireTimeout.
func NewHistoryRepository(pool *pgxpool.Pool, acquireTimeout time.Duration) HistoryRepository {
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}
	return &historyRepository{pool: pool, acquireTimeout: acquireTimeout}
}

// withConn acquires a connection, runs fn and always releases the connection.
func (r *historyRepository) withConn(ctx context.Context, op string, fn func(conn *pgxpool.Conn) error) error {
	if r.pool == nil {
		return fmt.Errorf("history repository not initialized")
	}

	acquireCtx, cancel := context.WithTimeout(ctx, r.acquireTimeout)
	conn, err := r.pool.Acquire(acquireCtx)
	cancel()
	if err != nil {
		return storageError(op, err)
	}
	defer conn.Release()

	if err := fn(conn); err != nil {
		return storageError(op, err)
	}
	return nil
}

func (r *historyRepository) GetByID(ctx context.Context, id int64) (domain.History, bool, error) {
	var (
		history domain.History
		found   bool
	)
	err := r.withConn(ctx, "get history", func(conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx, `SELECT `+historyColumns+` FROM histories WHERE id = $1`, id)
		scanErr := scanHistory(row, &history)
		if errors.Is(scanErr, pgx.ErrNoRows) {
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

func (r *historyRepository) Search(ctx context.Context, filter domain.HistoryFilter) (domain.SearchResult, error) {
	query := `SELECT ` + historyColumns + ` FROM histories ORDER BY updated_at DESC, id DESC LIMIT $1`
	args := []any{domain.SearchLimit + 1}
	if filter.WorkingDirectory != nil {
		query = `SELECT ` + historyColumns + ` FROM histories
		 WHERE working_directory = $1
		 ORDER BY updated_at DESC, id DESC`
		args = []any{*filter.WorkingDirectory}
	}

	histories := []domain.History{}
	err := r.withConn(ctx, "search histories", func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var history domain.History
			if err := scanHistory(rows, &history); err != nil {
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

func (r *historyRepository) Create(ctx context.Context, history domain.NewHistory) (domain.NewHistory, error) {
	err := r.withConn(ctx, "create history", func(conn *pgxpool.Conn) error {
		_, err := conn.Exec(
			ctx,
			`INSERT INTO histories (hostname, working_directory, command)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (hostname, working_directory, command)
			 DO UPDATE SET updated_at = now()`,
			history.Hostname,
			history.WorkingDirectory,
			history.Command,
		)
		return err
	})
	if err != nil {
		return domain.NewHistory{}, err
	}
	return history, nil
}

func (r *historyRepository) Delete(ctx context.Context, id int64) (domain.DeletedHistoryCount, error) {
	var count int64
	err := r.withConn(ctx, "delete history", func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM histories WHERE id = $1`, id)
		if err != nil {
			return err
		}
		count = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return domain.DeletedHistoryCount{}, err
	}
	return domain.NewDeletedHistoryCount(count), nil
}

func (r *historyRepository) Ping(ctx context.Context) error {
	return r.withConn(ctx, "ping database", func(conn *pgxpool.Conn) error {
		return conn.Ping(ctx)
	})
}

func scanHistory(row pgx.Row, history *domain.History) error {
	return row.Scan(
		&history.ID,
		&history.Hostname,
		&history.WorkingDirectory,
		&history.Command,
		&history.CreatedAt,
		&history.UpdatedAt,
	)
}

// capResult trims an unfiltered search to SearchLimit and flags the cut.
func capResult(histories []domain.History, filter domain.HistoryFilter) domain.SearchResult {
	if filter.WorkingDirectory == nil && len(histories) > domain.SearchLimit {
		return domain.SearchResult{Histories: histories[:domain.SearchLimit], Truncated: true}
	}
	return domain.SearchResult{Histories: histories}
}
