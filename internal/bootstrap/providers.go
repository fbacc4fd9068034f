package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/google/wire"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/social-feed-client/internal/adapters/config"
	apphttp "gitlab.com/timkado/api/social-feed-client/internal/adapters/http"
	"gitlab.com/timkado/api/social-feed-client/internal/adapters/logger"
	"gitlab.com/timkado/api/social-feed-client/internal/adapters/memory"
	appnats "gitlab.com/timkado/api/social-feed-client/internal/adapters/nats"
	appredis "gitlab.com/timkado/api/social-feed-client/internal/adapters/redis"
	"gitlab.com/timkado/api/social-feed-client/internal/adapters/rest"
	"gitlab.com/timkado/api/social-feed-client/internal/application"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
	"gitlab.com/timkado/api/social-feed-client/pkg/rediskeys"
)

const (
	backendRedis  = "redis"
	backendMemory = "memory"
	transportNATS = "nats"
	transportNone = "none"
)

// InstanceID identifies this client process on the session event bus.
type InstanceID string

// InitialZapLoggerProvider provides a basic *zap.Logger instance, primarily for config initialization.
// It returns the logger, a cleanup function (for syncing), and an error if creation fails.
func InitialZapLoggerProvider() (*zap.Logger, func(), error) {
	logger, err := zap.NewProduction()
	if err != nil {
		logger, err = zap.NewDevelopment()
		if err != nil {
			// NewExample never fails.
			logger = zap.NewExample()
			fmt.Fprintf(os.Stderr, "Failed to create initial zap logger (production and development failed, falling back to example): %v\n", err)
		}
	}

	cleanup := func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync initial zap logger: %v\n", syncErr)
		}
	}
	return logger, cleanup, nil
}

// App struct is defined here for Wire to use.
type App struct {
	configProvider config.Provider
	logger         domain.Logger
	httpServer     *http.Server
	session        *application.SessionState
	sessionSync    *application.SessionSync
	cacheJanitor   *application.CacheJanitor
	instanceID     InstanceID
}

// NewApp is the constructor for App, also for Wire.
func NewApp(
	cfgProvider config.Provider,
	appLogger domain.Logger,
	server *http.Server,
	session *application.SessionState,
	sessionSync *application.SessionSync,
	cacheJanitor *application.CacheJanitor,
	instanceID InstanceID,
) (*App, func(), error) {
	app := &App{
		configProvider: cfgProvider,
		logger:         appLogger,
		httpServer:     server,
		session:        session,
		sessionSync:    sessionSync,
		cacheJanitor:   cacheJanitor,
		instanceID:     instanceID,
	}
	cleanup := func() {
		app.logger.Info(context.Background(), "Running app cleanup...")
		app.cacheJanitor.Stop()
		if err := app.sessionSync.Stop(); err != nil {
			app.logger.Warn(context.Background(), "Failed to stop session sync", "error", err.Error())
		}
	}
	return app, cleanup, nil
}

// ConfigProvider provides the application configuration.
// appCtx bounds the lifetime of the config reload goroutines.
func ConfigProvider(appCtx context.Context, logger *zap.Logger) (config.Provider, error) {
	return config.NewViperProvider(appCtx, logger)
}

// LoggerProvider provides the application logger.
func LoggerProvider(cfgProvider config.Provider) (domain.Logger, error) {
	appCfg := cfgProvider.Get()
	return logger.NewZapAdapter(cfgProvider, appCfg.App.ServiceName)
}

// InstanceIDProvider uses server.instance_id, or a fresh UUID when it is unset.
func InstanceIDProvider(cfgProvider config.Provider) InstanceID {
	if id := cfgProvider.Get().Server.InstanceID; id != "" {
		return InstanceID(id)
	}
	return InstanceID(uuid.NewString())
}

// credentialNamespace scopes persisted credentials and session events to one backend.
func credentialNamespace(cfg *config.Config) string {
	if cfg.Credentials.Namespace != "" {
		return cfg.Credentials.Namespace
	}
	return rediskeys.Namespace(cfg.API.BaseURL)
}

// RedisClientProvider provides a Redis client and a cleanup function. It returns
// a nil client when neither the credential store nor the session bus uses Redis.
func RedisClientProvider(cfgProvider config.Provider, appLogger domain.Logger) (*redis.Client, func(), error) {
	appCfg := cfgProvider.Get()
	if appCfg.Credentials.Backend != backendRedis && appCfg.SessionEvents.Transport != backendRedis {
		appLogger.Info(context.Background(), "Redis not required by configuration; skipping connection")
		return nil, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     appCfg.Redis.Address,
		Password: appCfg.Redis.Password,
		DB:       appCfg.Redis.DB,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		appLogger.Error(context.Background(), "Failed to connect to Redis", "error", err.Error(), "address", appCfg.Redis.Address)
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", appCfg.Redis.Address, err)
	}
	cleanup := func() {
		client.Close()
		appLogger.Info(context.Background(), "Redis connection closed")
	}
	appLogger.Info(context.Background(), "Successfully connected to Redis", "address", appCfg.Redis.Address)
	return client, cleanup, nil
}

// CredentialStoreProvider selects the credential backend named by credentials.backend.
func CredentialStoreProvider(cfgProvider config.Provider, appLogger domain.Logger, redisClient *redis.Client) (domain.CredentialStore, error) {
	appCfg := cfgProvider.Get()
	switch appCfg.Credentials.Backend {
	case backendRedis:
		if appCfg.Credentials.EncryptionKey == "" {
			appLogger.Warn(context.Background(), "credentials.encryption_key is empty; tokens are stored in Redis unencrypted")
		}
		return appredis.NewCredentialStoreAdapter(redisClient, appLogger, credentialNamespace(appCfg), appCfg.Credentials.EncryptionKey)
	case backendMemory, "":
		appLogger.Info(context.Background(), "Using in-memory credential store; the session ends with the process")
		return memory.NewCredentialStore(), nil
	}
	return nil, fmt.Errorf("unknown credentials.backend %q", appCfg.Credentials.Backend)
}

// SessionEventBusProvider selects the transport named by session_events.transport.
// The bus is nil when synchronisation is disabled.
func SessionEventBusProvider(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger, redisClient *redis.Client) (domain.SessionEventBus, func(), error) {
	appCfg := cfgProvider.Get()
	ns := credentialNamespace(appCfg)
	switch appCfg.SessionEvents.Transport {
	case backendRedis:
		channel := rediskeys.SessionEventsChannel(appCfg.SessionEvents.Channel, ns)
		return appredis.NewSessionEventsPubSubAdapter(redisClient, appLogger, channel), func() {}, nil
	case transportNATS:
		subject := fmt.Sprintf("%s.%s", appCfg.NATS.Subject, ns)
		adapter, cleanup, err := appnats.NewSessionEventsAdapter(ctx, cfgProvider, appLogger, subject)
		if err != nil {
			return nil, nil, err
		}
		return adapter, cleanup, nil
	case transportNone, "":
		return nil, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown session_events.transport %q", appCfg.SessionEvents.Transport)
}

// ReadinessChecksProvider checks whichever infrastructure is in use.
func ReadinessChecksProvider(redisClient *redis.Client, bus domain.SessionEventBus) []apphttp.ReadinessCheck {
	var checks []apphttp.ReadinessCheck
	if redisClient != nil {
		checks = append(checks, apphttp.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	if natsBus, ok := bus.(*appnats.SessionEventsAdapter); ok {
		checks = append(checks, apphttp.ReadinessCheck{Name: "nats", Check: func(context.Context) error {
			if status := natsBus.NatsConn().Status(); status != nats.CONNECTED {
				return errors.New("nats connection " + status.String())
			}
			return nil
		}})
	}
	return checks
}

// TransportProvider provides the REST client for the backend.
func TransportProvider(cfgProvider config.Provider, appLogger domain.Logger) (domain.Transport, error) {
	return rest.NewClient(cfgProvider, appLogger)
}

// ResponseCacheProvider provides the response cache, cleared whenever the session ends.
func ResponseCacheProvider(cfgProvider config.Provider, appLogger domain.Logger, session *application.SessionState) (*application.ResponseCache, func()) {
	gcAfter := config.Seconds(cfgProvider.Get().Cache.GCSeconds, 5*time.Minute)
	cache := application.NewResponseCache(appLogger, gcAfter)
	unsubscribe := cache.BindToSession(session)
	return cache, unsubscribe
}

// SessionSyncProvider provides the cross-process session synchroniser.
func SessionSyncProvider(appLogger domain.Logger, session *application.SessionState, bus domain.SessionEventBus, instanceID InstanceID) *application.SessionSync {
	return application.NewSessionSync(appLogger, session, bus, string(instanceID))
}

// RouterProvider provides the root HTTP handler.
func RouterProvider(h *apphttp.Handlers, session *application.SessionState, cfgProvider config.Provider, appLogger domain.Logger) http.Handler {
	return apphttp.NewRouter(h, session, cfgProvider, appLogger)
}

// HTTPGracefulServerProvider provides a new HTTP server configured for graceful shutdown.
func HTTPGracefulServerProvider(cfgProvider config.Provider, handler http.Handler) *http.Server {
	appCfg := cfgProvider.Get()
	// A handler may wait on a request, a token refresh and one retry.
	writeTimeout := 3*config.Seconds(appCfg.API.TimeoutSeconds, 10*time.Second) + 5*time.Second

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", appCfg.Server.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// ProviderSet is the Wire provider set for the entire application.
var ProviderSet = wire.NewSet(
	InitialZapLoggerProvider,
	ConfigProvider,
	LoggerProvider,
	InstanceIDProvider,

	// Infrastructure Adapters
	RedisClientProvider,
	CredentialStoreProvider,
	SessionEventBusProvider,
	TransportProvider,
	ReadinessChecksProvider,

	// Application Services
	application.NewSessionState,
	application.NewDispatcher,
	ResponseCacheProvider,
	application.NewAuthService,
	application.NewPostsService,
	application.NewCommentsService,
	application.NewListFilters,
	SessionSyncProvider,
	application.NewCacheJanitor,

	// HTTP
	apphttp.NewHandlers,
	RouterProvider,
	HTTPGracefulServerProvider,

	NewApp,
)
