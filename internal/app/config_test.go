package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/feedsync/internal/store"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join("testdata")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9310", cfg.Server.Listen)
	require.Equal(t, "debug", cfg.Server.LogLevel)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "cache.example.com:6380", cfg.Cache.Redis.Address)
	require.Equal(t, 2, cfg.Cache.Redis.DB)
	require.Equal(t, 2*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "/var/lib/feedsync/credentials.json", cfg.Credentials.Path)
	require.Len(t, cfg.Credentials.EncryptionKey, 64)

	require.Equal(t, "https://api.example.com", cfg.Remote.BaseURL)
	require.Equal(t, 30*time.Second, cfg.Remote.Timeout)
	require.Equal(t, "api.example.com:443", cfg.Remote.ProbeAddress)
	require.Equal(t, 10*time.Second, cfg.Remote.ProbeTTL)

	require.Equal(t, 10, cfg.Feed.PageSize)

	require.False(t, cfg.Sync.Enabled)
	require.Equal(t, "@every 1m", cfg.Sync.Schedule)
	require.Equal(t, time.Hour, cfg.Sync.MaxAge)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:7600", cfg.Server.Listen)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/feedsync.sqlite", cfg.Database.Path)
	require.False(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "./data/credentials.json", cfg.Credentials.Path)
	require.Equal(t, "https://dummyjson.com", cfg.Remote.BaseURL)
	require.Equal(t, 15*time.Second, cfg.Remote.Timeout)
	require.Equal(t, 30, cfg.Feed.PageSize)
	require.True(t, cfg.Sync.Enabled)
	require.Equal(t, "@every 5m", cfg.Sync.Schedule)
	require.Equal(t, 30*time.Minute, cfg.Sync.MaxAge)
}

func TestCacheConfigAdapter(t *testing.T) {
	cfg := CacheConfig{
		Redis: RedisCacheConfig{
			Enabled:  true,
			Address:  " cache.example.com:6379 ",
			Username: " agent ",
			Password: "secret",
			DB:       3,
			TLS:      true,
			Timeout:  2 * time.Second,
		},
	}

	require.Equal(t, store.RedisConfig{
		Address:  "cache.example.com:6379",
		Username: "agent",
		Password: "secret",
		DB:       3,
		TLS:      true,
		Timeout:  2 * time.Second,
	}, cfg.RedisStoreConfig())
}
