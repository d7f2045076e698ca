package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rpattn/histd/internal/config"
	"github.com/rpattn/histd/internal/db"
	"github.com/rpattn/histd/internal/history"
	"github.com/rpattn/histd/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Driver = db.DriverSQLite
	cfg.Database.URL = filepath.Join(t.TempDir(), "histd.db")
	return cfg
}

func TestRouterServesHistoryRoutes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := sqliteConfig(t)
	st, err := openStore(ctx, cfg.Database, logging.Discard())
	require.NoError(t, err)
	defer st.close()

	router := newRouter(ctx, cfg.Server, history.NewService(st.repo, logging.Discard()), logging.Discard())

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(url.Values{
		"hostname":          {"h1"},
		"working_directory": {"/a"},
		"command":           {"ls"},
	}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	preflight := httptest.NewRequest(http.MethodOptions, "/", nil)
	preflight.Header.Set("Origin", "http://localhost:3000")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, preflight)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestOpenStoreRejectsInMemorySQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = db.DriverSQLite
	cfg.Database.URL = ":memory:"

	st, err := openStore(context.Background(), cfg.Database, logging.Discard())
	require.ErrorIs(t, err, db.ErrSQLiteInMemory)
	assert.Nil(t, st)
}

func TestMigrateCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATABASE_DRIVER", db.DriverSQLite)
	t.Setenv("DATABASE_URL", filepath.Join(dir, "migrate.db"))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"migrate", "--config", dir})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "schema version 1\n", out.String())

	// a second run is a no-op
	out.Reset()
	cmd = newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"migrate", "--config", dir})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "schema version 1\n", out.String())
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "dev\n", out.String())
}
