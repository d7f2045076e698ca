// Package history records, searches and deletes shell history entries.
package history

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rpattn/histd/internal/domain"
	"github.com/rpattn/histd/internal/repository"
)

// ValidationError reports input rejected before it reaches the store.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Service validates requests and forwards them to a HistoryRepository.
type Service struct {
	repo   repository.HistoryRepository
	logger *slog.Logger
}

// NewService creates a new history service.
func NewService(repo repository.HistoryRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Find returns the entry with id; the bool is false when it does not exist.
func (s *Service) Find(ctx context.Context, id int64) (domain.History, bool, error) {
	if err := validateID(id); err != nil {
		return domain.History{}, false, err
	}
	return s.repo.GetByID(ctx, id)
}

// Search lists entries, most recently used first.
func (s *Service) Search(ctx context.Context, filter domain.HistoryFilter) (domain.SearchResult, error) {
	result, err := s.repo.Search(ctx, filter)
	if err != nil {
		return domain.SearchResult{}, err
	}
	if result.Truncated {
		s.logger.WarnContext(ctx, "history search truncated", "limit", domain.SearchLimit)
	}
	return result, nil
}

// Record stores h, or refreshes the matching entry when it was seen before.
func (s *Service) Record(ctx context.Context, h domain.NewHistory) (domain.NewHistory, error) {
	h = h.Normalize()
	if h.Hostname == "" {
		return domain.NewHistory{}, &ValidationError{Field: "hostname", Message: "must not be empty"}
	}

	created, err := s.repo.Create(ctx, h)
	if err != nil {
		return domain.NewHistory{}, err
	}
	s.logger.DebugContext(ctx, "history recorded", "hostname", h.Hostname, "working_directory", h.WorkingDirectory)
	return created, nil
}

// Delete removes the entry with id. A missing id is not an error.
func (s *Service) Delete(ctx context.Context, id int64) (domain.DeletedHistoryCount, error) {
	if err := validateID(id); err != nil {
		return domain.DeletedHistoryCount{}, err
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return domain.DeletedHistoryCount{}, err
	}
	if deleted.Count > 0 {
		s.logger.InfoContext(ctx, "history deleted", "id", id)
	}
	return deleted, nil
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func validateID(id int64) error {
	if id <= 0 {
		return &ValidationError{Field: "id", Message: "must be a positive integer"}
	}
	return nil
}
