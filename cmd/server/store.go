package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rpattn/histd/internal/db"
	"github.com/rpattn/histd/internal/repository"
)

// store is an opened, migrated history repository and its cleanup.
type store struct {
	repo  repository.HistoryRepository
	close func()
}

func openStore(ctx context.Context, cfg db.Config, logger *slog.Logger) (*store, error) {
	version, err := migrate(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("database migrated", "driver", cfg.Driver, "version", version)

	switch cfg.Driver {
	case db.DriverSQLite:
		conn, err := db.OpenSQLite(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &store{
			repo:  repository.NewSQLiteHistoryRepository(conn, repository.WithAcquireTimeout(cfg.AcquireTimeout)),
			close: func() { _ = conn.Close() },
		}, nil
	case db.DriverPostgres:
		conn, err := db.NewConnection(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return &store{
			repo:  repository.NewHistoryRepository(conn.Pool, cfg.AcquireTimeout),
			close: conn.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func migrate(ctx context.Context, cfg db.Config) (uint, error) {
	switch cfg.Driver {
	case db.DriverSQLite:
		conn, err := db.OpenSQLite(ctx, cfg)
		if err != nil {
			return 0, err
		}
		defer conn.Close()
		return db.RunSQLiteMigrations(conn)
	case db.DriverPostgres:
		return db.RunMigrations(cfg.URL)
	default:
		return 0, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
