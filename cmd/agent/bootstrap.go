package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/charlesng35/feedsync/internal/api"
	"github.com/charlesng35/feedsync/internal/app"
	"github.com/charlesng35/feedsync/internal/app/syncer"
	"github.com/charlesng35/feedsync/internal/connectivity"
	"github.com/charlesng35/feedsync/internal/credentials"
	"github.com/charlesng35/feedsync/internal/database"
	"github.com/charlesng35/feedsync/internal/entity"
	"github.com/charlesng35/feedsync/internal/gateway"
	"github.com/charlesng35/feedsync/internal/monitoring"
	"github.com/charlesng35/feedsync/internal/monitoring/checks"
	"github.com/charlesng35/feedsync/internal/realtime"
	"github.com/charlesng35/feedsync/internal/repository"
	"github.com/charlesng35/feedsync/internal/state"
	"github.com/charlesng35/feedsync/internal/store"
	"github.com/charlesng35/feedsync/pkg/logger"
)

// runtimeStack bundles long-lived components used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     *store.RedisStore
	Container *state.Container
	Hub       *realtime.Hub
	Syncer    *syncer.Syncer
	Router    *gin.Engine

	stopPump func()
}

// bootstrapRuntime initialises the database, stores, repositories, state
// container, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	// The first boot persists these; later boots ignore the config value so a
	// rotated config cannot silently orphan previously encrypted credentials.
	credentialKey, err := database.EnsureSetting(ctx, stack.DB, database.CredentialKeySetting, cfg.Credentials.EncryptionKey)
	if err != nil {
		return nil, err
	}
	instanceID, err := database.EnsureSetting(ctx, stack.DB, database.AgentInstanceSetting, uuid.NewString())
	if err != nil {
		return nil, err
	}

	secret, err := app.DecodeKey(credentialKey)
	if err != nil {
		return nil, fmt.Errorf("decode credential encryption key: %w", err)
	}

	creds, err := credentials.NewFileStore(cfg.Credentials.Path, secret)
	if err != nil {
		return nil, fmt.Errorf("initialise credential store: %w", err)
	}

	var cacheStore store.Store = store.NewDatabaseStore(stack.DB)
	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = store.NewRedisStore(cfg.Cache.RedisStoreConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(err))
			stack.Redis = nil
		} else {
			cacheStore = stack.Redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	probeAddr, err := resolveProbeAddress(cfg)
	if err != nil {
		return nil, err
	}
	checker, err := connectivity.NewProbe(connectivity.Config{
		Address:     probeAddr,
		DialTimeout: cfg.Remote.ProbeTimeout,
		CacheTTL:    cfg.Remote.ProbeTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise connectivity probe: %w", err)
	}

	authGW, feedGW, err := buildGateways(cfg, instanceID, creds)
	if err != nil {
		return nil, err
	}

	users, err := store.NewTyped[entity.User](cacheStore, "users")
	if err != nil {
		return nil, fmt.Errorf("initialise user cache: %w", err)
	}
	posts, err := store.NewTyped[entity.Post](cacheStore, "posts")
	if err != nil {
		return nil, fmt.Errorf("initialise post cache: %w", err)
	}

	sessions, err := repository.NewSessionRepository(checker, creds, users, authGW)
	if err != nil {
		return nil, fmt.Errorf("initialise session repository: %w", err)
	}
	feed, err := repository.NewFeedRepository(checker, posts, feedGW, cfg.Feed.PageSize)
	if err != nil {
		return nil, fmt.Errorf("initialise feed repository: %w", err)
	}

	stack.Container, err = state.NewContainer(sessions, feed)
	if err != nil {
		return nil, fmt.Errorf("initialise state container: %w", err)
	}
	go stack.Container.Run()

	stack.Hub = realtime.NewHub(snapshotFunc(stack.Container), state.StreamSession, state.StreamFeed)
	stack.stopPump = startEventPump(stack.Container, stack.Hub)

	if cfg.Sync.Enabled {
		stack.Syncer, err = syncer.New(stack.Container, sessions, checker, syncer.WithSchedule(cfg.Sync.Schedule))
		if err != nil {
			return nil, fmt.Errorf("initialise sync scheduler: %w", err)
		}
		if err := stack.Syncer.Start(); err != nil {
			return nil, fmt.Errorf("start sync scheduler: %w", err)
		}
	}

	health := buildHealthManager(cfg, stack, checker)

	stack.Router, err = api.NewRouter(stack.Container, checker, stack.Hub, stack.Syncer, health)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// buildGateways wires the remote clients. Token refresh goes through a bare
// client so a refresh round trip can never recurse into the auth transport.
func buildGateways(cfg *app.Config, instanceID string, creds credentials.Store) (*gateway.AuthGateway, *gateway.FeedGateway, error) {
	bare, err := gateway.NewClient(gateway.Config{
		BaseURL: cfg.Remote.BaseURL,
		Timeout: cfg.Remote.Timeout,
		AgentID: instanceID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialise remote client: %w", err)
	}
	refresher, err := gateway.NewAuthGateway(bare)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise auth gateway: %w", err)
	}

	transport, err := gateway.NewAuthTransport(creds, refresher.Refresh, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise auth transport: %w", err)
	}
	client, err := gateway.NewClient(gateway.Config{
		BaseURL:   cfg.Remote.BaseURL,
		Timeout:   cfg.Remote.Timeout,
		AgentID:   instanceID,
		Transport: transport,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialise remote client: %w", err)
	}

	authGW, err := gateway.NewAuthGateway(client)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise auth gateway: %w", err)
	}
	feedGW, err := gateway.NewFeedGateway(client)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise feed gateway: %w", err)
	}
	return authGW, feedGW, nil
}

// snapshotFunc lets a fresh WebSocket subscriber start from current state.
func snapshotFunc(container *state.Container) realtime.SnapshotFunc {
	return func(stream string) (realtime.Message, bool) {
		switch stream {
		case state.StreamSession:
			return realtime.Message{Stream: stream, Event: realtime.EventSnapshot, Data: container.SessionSnapshot()}, true
		case state.StreamFeed:
			return realtime.Message{Stream: stream, Event: realtime.EventSnapshot, Data: container.FeedSnapshot()}, true
		default:
			return realtime.Message{}, false
		}
	}
}

// startEventPump forwards container state changes to the realtime hub. The
// returned function cancels the subscription and drains the pump.
func startEventPump(container *state.Container, hub *realtime.Hub) func() {
	events, cancel := container.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for event := range events {
			message := realtime.Message{Stream: event.Stream, Event: realtime.EventUpdate}
			switch {
			case event.Session != nil:
				message.Data = *event.Session
			case event.Feed != nil:
				message.Data = *event.Feed
			}
			hub.BroadcastStream(event.Stream, message)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// buildHealthManager registers the probes behind /health. Liveness only
// covers what the agent cannot run without; everything sync-related is
// readiness, so an offline agent stays live while reporting not ready.
func buildHealthManager(cfg *app.Config, stack *runtimeStack, checker connectivity.Checker) *monitoring.HealthManager {
	health := monitoring.NewHealthManager()

	health.RegisterLiveness(checks.Database(stack.DB, 0))

	health.RegisterReadiness(checks.Database(stack.DB, 0))
	health.RegisterReadiness(checks.Connectivity(checker))
	health.RegisterReadiness(checks.Remote(nil, cfg.Remote.BaseURL, 0))
	if cfg.Cache.Redis.Enabled {
		var pinger checks.RedisPinger
		if stack.Redis != nil {
			pinger = stack.Redis
		}
		health.RegisterReadiness(checks.Redis(pinger, true, 0))
	}
	if stack.Syncer != nil {
		health.RegisterReadiness(stack.Syncer.HealthCheck(cfg.Sync.MaxAge))
	}

	return health
}

// Shutdown gracefully stops background work and releases resources.
func (s *runtimeStack) Shutdown(log *zap.Logger) {
	if s == nil {
		return
	}

	if s.stopPump != nil {
		s.stopPump()
	}

	if s.Syncer != nil {
		<-s.Syncer.Stop().Done()
	}

	if s.Container != nil {
		s.Container.Stop()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

// resolveProbeAddress picks the TCP endpoint the connectivity probe dials.
// When unset it falls back to the remote API host so "online" means the host
// that actually serves data is reachable.
func resolveProbeAddress(cfg *app.Config) (string, error) {
	if addr := strings.TrimSpace(cfg.Remote.ProbeAddress); addr != "" {
		return addr, nil
	}

	parsed, err := url.Parse(strings.TrimSpace(cfg.Remote.BaseURL))
	if err != nil {
		return "", fmt.Errorf("parse remote.base_url: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("remote.base_url %q has no host", cfg.Remote.BaseURL)
	}

	port := parsed.Port()
	if port == "" {
		if strings.EqualFold(parsed.Scheme, "http") {
			port = "80"
		} else {
			port = "443"
		}
	}

	return net.JoinHostPort(host, port), nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
