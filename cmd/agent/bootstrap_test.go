package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/feedsync/internal/app"
	"github.com/charlesng35/feedsync/internal/database"
)

func TestBootstrapRuntimeWiresStack(t *testing.T) {
	dir := t.TempDir()
	cfg, err := app.LoadConfig(dir)
	require.NoError(t, err)

	cfg.Database.Path = filepath.Join(dir, "agent.sqlite")
	cfg.Credentials.Path = filepath.Join(dir, "credentials.json")
	cfg.Sync.Enabled = false

	_, err = app.ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)

	log := zap.NewNop()
	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(log) })

	require.NotNil(t, stack.Router)
	require.NotNil(t, stack.Container)
	require.NotNil(t, stack.Hub)
	require.Nil(t, stack.Syncer)

	// The generated credential key and instance id survive for the next boot.
	key, err := database.GetSetting(context.Background(), stack.DB, database.CredentialKeySetting)
	require.NoError(t, err)
	require.Equal(t, cfg.Credentials.EncryptionKey, key)

	instanceID, err := database.GetSetting(context.Background(), stack.DB, database.AgentInstanceSetting)
	require.NoError(t, err)
	require.NotEmpty(t, instanceID)

	// Liveness stays network-free, so this answers even with no connectivity.
	rec := httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestConvertDatabaseConfig(t *testing.T) {
	cfg := &app.Config{}
	cfg.Database.Driver = " SQLite "

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "sqlite", dbCfg.Driver)

	cfg = &app.Config{}
	cfg.Database.Driver = "postgresql"
	cfg.Database.Postgres = app.DBAuthConfig{
		Host:     " db.example.com ",
		Port:     5433,
		Database: "feedsync",
		Username: "agent",
		Password: "secret",
	}

	dbCfg = convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db.example.com", dbCfg.Host)
	require.Equal(t, 5433, dbCfg.Port)
	require.Equal(t, "feedsync", dbCfg.Name)
	require.Equal(t, "agent", dbCfg.User)
	require.Equal(t, "secret", dbCfg.Password)
}

func TestResolveProbeAddress(t *testing.T) {
	cfg := &app.Config{}
	cfg.Remote.ProbeAddress = " probe.example.com:9 "

	addr, err := resolveProbeAddress(cfg)
	require.NoError(t, err)
	require.Equal(t, "probe.example.com:9", addr)

	cfg = &app.Config{}
	cfg.Remote.BaseURL = "https://dummyjson.com"

	addr, err = resolveProbeAddress(cfg)
	require.NoError(t, err)
	require.Equal(t, "dummyjson.com:443", addr)

	cfg.Remote.BaseURL = "http://localhost:8080/api"

	addr, err = resolveProbeAddress(cfg)
	require.NoError(t, err)
	require.Equal(t, "localhost:8080", addr)

	cfg.Remote.BaseURL = "not a url"

	_, err = resolveProbeAddress(cfg)
	require.Error(t, err)
}

func TestEnsureLoopbackListen(t *testing.T) {
	require.NoError(t, ensureLoopbackListen("127.0.0.1:7600"))
	require.NoError(t, ensureLoopbackListen("localhost:7600"))
	require.NoError(t, ensureLoopbackListen("[::1]:7600"))

	require.Error(t, ensureLoopbackListen("0.0.0.0:7600"))
	require.Error(t, ensureLoopbackListen("192.168.1.5:7600"))
	require.Error(t, ensureLoopbackListen("7600"))
}
