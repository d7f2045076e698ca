package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rpattn/histd/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// contractFixture builds a fresh, empty store. advance moves the store clock
// forward so that consecutive writes get distinct timestamps.
type contractFixture struct {
	repo    HistoryRepository
	advance func()
}

func runHistoryContract(t *testing.T, newFixture func(t *testing.T) contractFixture) {
	t.Run("create then find by working directory", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		created, err := f.repo.Create(ctx, domain.NewHistory{Hostname: "test-host", WorkingDirectory: "/test/dir", Command: "test command"})
		require.NoError(t, err)
		assert.Equal(t, domain.NewHistory{Hostname: "test-host", WorkingDirectory: "/test/dir", Command: "test command"}, created)

		result, err := f.repo.Search(ctx, domain.ByWorkingDirectory("/test/dir"))
		require.NoError(t, err)
		require.Len(t, result.Histories, 1)
		found := result.Histories[0]
		assert.Equal(t, "test-host", found.Hostname)
		require.NotNil(t, found.WorkingDirectory)
		assert.Equal(t, "/test/dir", *found.WorkingDirectory)
		assert.Equal(t, "test command", found.Command)
		assert.Equal(t, found.CreatedAt, found.UpdatedAt)
		assert.False(t, result.Truncated)
	})

	t.Run("repeated create refreshes updated_at", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		entry := domain.NewHistory{Hostname: "h1", WorkingDirectory: "/a", Command: "ls"}

		_, err := f.repo.Create(ctx, entry)
		require.NoError(t, err)
		first := onlyEntry(t, f.repo, "/a")

		f.advance()
		_, err = f.repo.Create(ctx, entry)
		require.NoError(t, err)
		second := onlyEntry(t, f.repo, "/a")

		assert.Equal(t, first.ID, second.ID)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt), "created_at must not change")
		assert.True(t, second.UpdatedAt.After(first.UpdatedAt), "updated_at should advance: %s -> %s", first.UpdatedAt, second.UpdatedAt)
	})

	t.Run("different working directory is a distinct entry", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		_, err := f.repo.Create(ctx, domain.NewHistory{Hostname: "h1", WorkingDirectory: "/a", Command: "ls"})
		require.NoError(t, err)
		_, err = f.repo.Create(ctx, domain.NewHistory{Hostname: "h1", WorkingDirectory: "/b", Command: "ls"})
		require.NoError(t, err)

		all, err := f.repo.Search(ctx, domain.HistoryFilter{})
		require.NoError(t, err)
		assert.Len(t, all.Histories, 2)

		filtered, err := f.repo.Search(ctx, domain.ByWorkingDirectory("/a"))
		require.NoError(t, err)
		require.Len(t, filtered.Histories, 1)
		assert.Equal(t, "/a", *filtered.Histories[0].WorkingDirectory)
	})

	t.Run("filter is exact and case sensitive", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		for _, pwd := range []string{"/Work", "/work", "/work/sub"} {
			_, err := f.repo.Create(ctx, domain.NewHistory{Hostname: "h", WorkingDirectory: pwd, Command: "make"})
			require.NoError(t, err)
		}

		result, err := f.repo.Search(ctx, domain.ByWorkingDirectory("/work"))
		require.NoError(t, err)
		require.Len(t, result.Histories, 1)
		assert.Equal(t, "/work", *result.Histories[0].WorkingDirectory)

		empty, err := f.repo.Search(ctx, domain.ByWorkingDirectory("/nowhere"))
		require.NoError(t, err)
		assert.NotNil(t, empty.Histories)
		assert.Empty(t, empty.Histories)
	})

	t.Run("search orders by most recent update", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		for _, command := range []string{"first", "second", "third"} {
			_, err := f.repo.Create(ctx, domain.NewHistory{Hostname: "h", WorkingDirectory: "/o", Command: command})
			require.NoError(t, err)
			f.advance()
		}
		_, err := f.repo.Create(ctx, domain.NewHistory{Hostname: "h", WorkingDirectory: "/o", Command: "first"})
		require.NoError(t, err)

		for _, filter := range []domain.HistoryFilter{{}, domain.ByWorkingDirectory("/o")} {
			result, err := f.repo.Search(ctx, filter)
			require.NoError(t, err)
			assert.Equal(t, []string{"first", "third", "second"}, commands(result.Histories))
			for i := 1; i < len(result.Histories); i++ {
				assert.False(t, result.Histories[i].UpdatedAt.After(result.Histories[i-1].UpdatedAt))
			}
		}
	})

	t.Run("delete then find is absent", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		_, err := f.repo.Create(ctx, domain.NewHistory{Hostname: "delete-host", WorkingDirectory: "/delete/dir", Command: "delete command"})
		require.NoError(t, err)
		entry := onlyEntry(t, f.repo, "/delete/dir")

		got, found, err := f.repo.GetByID(ctx, entry.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, entry, got)

		deleted, err := f.repo.Delete(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.DeletedHistoryCount{Count: 1, Message: "Successfully deleted"}, deleted)

		_, found, err = f.repo.GetByID(ctx, entry.ID)
		require.NoError(t, err)
		assert.False(t, found)

		again, err := f.repo.Delete(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), again.Count)
	})

	t.Run("missing id is absent not an error", func(t *testing.T) {
		f := newFixture(t)

		_, found, err := f.repo.GetByID(context.Background(), 987654)
		require.NoError(t, err)
		assert.False(t, found)

		deleted, err := f.repo.Delete(context.Background(), 987654)
		require.NoError(t, err)
		assert.Equal(t, int64(0), deleted.Count)
	})

	t.Run("empty command is recorded", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		_, err := f.repo.Create(ctx, domain.NewHistory{Hostname: "h", WorkingDirectory: "/e", Command: ""})
		require.NoError(t, err)
		entry := onlyEntry(t, f.repo, "/e")
		assert.Equal(t, "", entry.Command)
	})

	t.Run("concurrent creates of one key leave one row", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		entry := domain.NewHistory{Hostname: "race", WorkingDirectory: "/race", Command: "go test ./..."}

		var wg sync.WaitGroup
		errs := make(chan error, 16)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.repo.Create(ctx, entry)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		onlyEntry(t, f.repo, "/race")
	})

	t.Run("ping", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.repo.Ping(context.Background()))
	})
}

func onlyEntry(t *testing.T, repo HistoryRepository, pwd string) domain.History {
	t.Helper()
	result, err := repo.Search(context.Background(), domain.ByWorkingDirectory(pwd))
	require.NoError(t, err)
	require.Len(t, result.Histories, 1)
	return result.Histories[0]
}

func commands(histories []domain.History) []string {
	out := make([]string, len(histories))
	for i, h := range histories {
		out[i] = h.Command
	}
	return out
}

// stepClock is a deterministic clock that moves forward on demand.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
