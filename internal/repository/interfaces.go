package repository

import (
	"context"

	"github.com/rpattn/histd/internal/domain"
)

// HistoryRepository defines the interface for shell history storage.
//
// Implementations are safe for concurrent use. Every call acquires one pooled
// connection, runs a single auto-committed statement and releases the
// connection on return. Failures are returned as *StorageError and are never
// retried.
type HistoryRepository interface {
	// GetByID returns the entry with id. The bool is false when no row exists.
	GetByID(ctx context.Context, id int64) (domain.History, bool, error)
	// Search returns entries ordered by updated_at descending.
	Search(ctx context.Context, filter domain.HistoryFilter) (domain.SearchResult, error)
	// Create inserts the entry or, when its identity key already exists,
	// refreshes updated_at on the existing row.
	Create(ctx context.Context, history domain.NewHistory) (domain.NewHistory, error)
	// Delete removes the entry with id. Deleting a missing id reports a count of 0.
	Delete(ctx context.Context, id int64) (domain.DeletedHistoryCount, error)
	// Ping checks that the backing database is reachable.
	Ping(ctx context.Context) error
}
