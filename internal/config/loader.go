package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/histd/internal/db"
	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Database db.Config
	Server   ServerConfig
	Log      LogConfig
	// Source is the config file that was read, empty when only defaults and env applied.
	Source string
}

// ServerConfig controls the HTTP listener and its middleware.
type ServerConfig struct {
	Addr            string
	CORSOrigins     []string
	RateLimit       float64
	RateBurst       int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Server: ServerConfig{
			Addr:            "0.0.0.0:8088",
			CORSOrigins:     []string{"*"},
			RateLimit:       50,
			RateBurst:       100,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads config.yaml from configPath when present, then applies
// environment overrides such as DATABASE_URL and SERVER_ADDR.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // allow environment overrides

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.Source = v.ConfigFileUsed()
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(v.GetString("database.driver")))
	cfg.Database.URL = strings.TrimSpace(v.GetString("database.url"))
	cfg.Database.MaxConns = v.GetInt32("database.max_conns")
	cfg.Database.MinConns = v.GetInt32("database.min_conns")
	cfg.Database.MaxConnLifetime = v.GetDuration("database.max_conn_lifetime")
	cfg.Database.MaxConnIdleTime = v.GetDuration("database.max_conn_idle_time")
	cfg.Database.AcquireTimeout = v.GetDuration("database.acquire_timeout")

	cfg.Server.Addr = v.GetString("server.addr")
	cfg.Server.CORSOrigins = splitList(v.GetStringSlice("server.cors_origins"))
	cfg.Server.RateLimit = v.GetFloat64("server.rate_limit")
	cfg.Server.RateBurst = v.GetInt("server.rate_burst")
	cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	cfg.Server.ShutdownTimeout = v.GetDuration("server.shutdown_timeout")

	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return errors.New("database url is required")
	}
	if c.Database.Driver == db.DriverSQLite && db.IsInMemorySQLite(c.Database.URL) {
		return db.ErrSQLiteInMemory
	}
	if c.Server.Addr == "" {
		return errors.New("server addr is required")
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return errors.New("rate limit settings must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.Log.Format)
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.url", cfg.Database.URL)
	v.SetDefault("database.max_conns", cfg.Database.MaxConns)
	v.SetDefault("database.min_conns", cfg.Database.MinConns)
	v.SetDefault("database.max_conn_lifetime", cfg.Database.MaxConnLifetime)
	v.SetDefault("database.max_conn_idle_time", cfg.Database.MaxConnIdleTime)
	v.SetDefault("database.acquire_timeout", cfg.Database.AcquireTimeout)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.cors_origins", cfg.Server.CORSOrigins)
	v.SetDefault("server.rate_limit", cfg.Server.RateLimit)
	v.SetDefault("server.rate_burst", cfg.Server.RateBurst)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
