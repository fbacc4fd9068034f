package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "SOCIAL_FEED"

// ServerConfig holds the local HTTP surface configuration.
// Note: Fields should be exported (start with uppercase) to be unmarshalled by Viper.
type ServerConfig struct {
	HTTPPort   int    `mapstructure:"http_port"`
	InstanceID string `mapstructure:"instance_id"` // Generated at startup when empty
	APIKey     string `mapstructure:"api_key"`     // Guards /v1 when set, should come from ENV
}

// APIConfig points the client at the backend.
type APIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	AllowInsecure  bool   `mapstructure:"allow_insecure"` // Skip TLS verification, local dev only
}

// CacheConfig holds response cache freshness windows.
type CacheConfig struct {
	PostsStaleSeconds    int `mapstructure:"posts_stale_seconds"`
	CommentsStaleSeconds int `mapstructure:"comments_stale_seconds"`
	UserStaleSeconds     int `mapstructure:"user_stale_seconds"`
	GCSeconds            int `mapstructure:"gc_seconds"`
	PruneIntervalSeconds int `mapstructure:"prune_interval_seconds"`
}

// CredentialsConfig selects where the session is persisted.
type CredentialsConfig struct {
	Backend       string `mapstructure:"backend"`        // redis | memory
	EncryptionKey string `mapstructure:"encryption_key"` // hex AES key, should come from ENV
	Namespace     string `mapstructure:"namespace"`      // defaults to a hash of api.base_url
}

// RedisConfig holds Redis-related configurations.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"` // Optional
	DB       int    `mapstructure:"db"`       // Optional
}

// SessionEventsConfig selects the transport used to sync sessions across processes.
type SessionEventsConfig struct {
	Transport string `mapstructure:"transport"` // redis | nats | none
	Channel   string `mapstructure:"channel"`
}

// NATSConfig holds NATS-related configurations.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// LogConfig holds logging-related configurations.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

// AppConfig holds application-specific configurations.
type AppConfig struct {
	ServiceName            string `mapstructure:"service_name"`
	Version                string `mapstructure:"version"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

// Config holds all configuration for the application.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	API           APIConfig           `mapstructure:"api"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Credentials   CredentialsConfig   `mapstructure:"credentials"`
	Redis         RedisConfig         `mapstructure:"redis"`
	SessionEvents SessionEventsConfig `mapstructure:"session_events"`
	NATS          NATSConfig          `mapstructure:"nats"`
	Log           LogConfig           `mapstructure:"log"`
	App           AppConfig           `mapstructure:"app"`
}

// Seconds converts a configured number of seconds, falling back when unset.
func Seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

// Provider defines an interface for accessing application configuration.
// This allows for easy mocking in tests and decouples the app from Viper.
type Provider interface {
	Get() *Config
}

var defaults = map[string]any{
	"server.http_port":             8090,
	"server.instance_id":           "",
	"server.api_key":               "",
	"api.base_url":                 "http://localhost:3000/api",
	"api.timeout_seconds":          10,
	"api.allow_insecure":           false,
	"cache.posts_stale_seconds":    300,
	"cache.comments_stale_seconds": 120,
	"cache.user_stale_seconds":     300,
	"cache.gc_seconds":             300,
	"cache.prune_interval_seconds": 60,
	"credentials.backend":          "memory",
	"credentials.encryption_key":   "",
	"credentials.namespace":        "",
	"redis.address":                "localhost:6379",
	"redis.password":               "",
	"redis.db":                     0,
	"session_events.transport":     "none",
	"session_events.channel":       "social_feed:session_events",
	"nats.url":                     "nats://localhost:4222",
	"nats.subject":                 "social_feed.session_events",
	"log.level":                    "info",
	"log.format":                   "json",
	"app.service_name":             "social-feed-client",
	"app.version":                  "dev",
	"app.shutdown_timeout_seconds": 10,
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	cfg := &Config{}
	_ = v.Unmarshal(cfg) // defaults always decode
	return cfg
}

// staticProvider serves a fixed configuration.
type staticProvider struct {
	config *Config
}

// NewStaticProvider wraps cfg in a Provider. Used by tests and embedders.
func NewStaticProvider(cfg *Config) Provider {
	return &staticProvider{config: cfg}
}

func (p *staticProvider) Get() *Config { return p.config }

// viperProvider implements the Provider interface using Viper.
type viperProvider struct {
	config atomic.Pointer[Config]
	logger *zap.Logger // Using zap.Logger directly for config internal logging, not domain.Logger to avoid circular deps
}

// NewViperProvider creates and initializes a new configuration provider using Viper.
// It loads configuration from file and environment variables, and sets up hot-reloading.
// appCtx is the application lifecycle context used for graceful shutdown of background tasks.
func NewViperProvider(appCtx context.Context, logger *zap.Logger) (Provider, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetConfigName(getEnv("VIPER_CONFIG_NAME", "config"))
	v.SetConfigType("yaml")
	v.AddConfigPath(os.Getenv("VIPER_CONFIG_PATH"))
	v.AddConfigPath(".")

	// Defaults register every key, so AutomaticEnv covers all of them.
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")) // api.base_url becomes SOCIAL_FEED_API_BASE_URL

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Warn("Config file not found; relying on defaults and environment variables", zap.Error(err))
		} else {
			logger.Error("Failed to read config file", zap.Error(err))
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		logger.Error("Failed to unmarshal config", zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	p := &viperProvider{logger: logger}
	p.config.Store(cfg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	go func() {
		defer signal.Stop(sigChan)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic recovered in SIGHUP handler goroutine",
					zap.String("goroutine_name", "SIGHUPConfigReloader"),
					zap.Any("panic_info", r),
					zap.String("stacktrace", string(debug.Stack())),
				)
			}
		}()
		for {
			select {
			case sig := <-sigChan:
				p.logger.Info("SIGHUP received, attempting to reload configuration...", zap.String("signal", sig.String()))
				if err := v.ReadInConfig(); err != nil {
					p.logger.Error("Failed to re-read config file on SIGHUP", zap.Error(err))
					continue
				}
				p.reload(v, "sighup")
			case <-appCtx.Done():
				p.logger.Info("SIGHUPConfigReloader goroutine shutting down due to context cancellation.")
				return
			}
		}
	}()

	if v.ConfigFileUsed() != "" {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("Panic recovered in OnConfigChange callback",
						zap.String("event_name", e.Name),
						zap.Any("panic_info", r),
						zap.String("stacktrace", string(debug.Stack())),
					)
				}
			}()
			p.logger.Info("Config file changed", zap.String("name", e.Name), zap.String("op", e.Op.String()))
			p.reload(v, "file_change")
		})
	}

	p.logger.Info("Configuration loaded successfully", zap.String("config_file_used", v.ConfigFileUsed()))
	return p, nil
}

func (p *viperProvider) reload(v *viper.Viper, trigger string) {
	newCfg := &Config{}
	if err := v.Unmarshal(newCfg); err != nil {
		p.logger.Error("Failed to unmarshal reloaded config", zap.String("trigger", trigger), zap.Error(err))
		return
	}
	p.config.Store(newCfg)
	p.logger.Info("Configuration reloaded successfully", zap.String("trigger", trigger))
}

// Get returns the current configuration.
func (p *viperProvider) Get() *Config {
	return p.config.Load()
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
