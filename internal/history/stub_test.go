package history

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rpattn/histd/internal/domain"
	"github.com/rpattn/histd/internal/repository"
)

var errStorageDown = &repository.StorageError{
	Op:   "search histories",
	Kind: repository.ErrStorageUnavailable,
	Err:  errors.New("dial tcp 127.0.0.1:5432: connection refused"),
}

// stubRepo is an in-memory HistoryRepository keyed on the identity triple.
type stubRepo struct {
	mu      sync.Mutex
	nextID  int64
	now     time.Time
	rows    map[domain.NewHistory]*domain.History
	err     error
	pingErr error
	creates int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		now:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		rows: map[domain.NewHistory]*domain.History{},
	}
}

func (s *stubRepo) tick() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

func (s *stubRepo) GetByID(ctx context.Context, id int64) (domain.History, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.History{}, false, s.err
	}
	for _, row := range s.rows {
		if row.ID == id {
			return *row, true, nil
		}
	}
	return domain.History{}, false, nil
}

func (s *stubRepo) Search(ctx context.Context, filter domain.HistoryFilter) (domain.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.SearchResult{}, s.err
	}
	out := []domain.History{}
	for _, row := range s.rows {
		if filter.WorkingDirectory != nil && *row.WorkingDirectory != *filter.WorkingDirectory {
			continue
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return domain.SearchResult{Histories: out}, nil
}

func (s *stubRepo) Create(ctx context.Context, h domain.NewHistory) (domain.NewHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.NewHistory{}, s.err
	}
	s.creates++
	now := s.tick()
	if row, ok := s.rows[h]; ok {
		row.UpdatedAt = now
		return h, nil
	}
	s.nextID++
	pwd := h.WorkingDirectory
	s.rows[h] = &domain.History{
		ID:               s.nextID,
		Hostname:         h.Hostname,
		WorkingDirectory: &pwd,
		Command:          h.Command,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return h, nil
}

func (s *stubRepo) Delete(ctx context.Context, id int64) (domain.DeletedHistoryCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.DeletedHistoryCount{}, s.err
	}
	for key, row := range s.rows {
		if row.ID == id {
			delete(s.rows, key)
			return domain.NewDeletedHistoryCount(1), nil
		}
	}
	return domain.NewDeletedHistoryCount(0), nil
}

func (s *stubRepo) Ping(ctx context.Context) error {
	return s.pingErr
}
