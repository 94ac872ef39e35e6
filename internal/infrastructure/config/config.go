package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration. It is built once at startup
// and passed explicitly to every component that needs it.
type Config struct {
	App        AppConfig
	Log        LogConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Queue      QueueConfig
	StoreAPI   StoreAPIConfig
	Martan     MartanConfig
	Sweep      SweepConfig
	Enrichment EnrichmentConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// QueueConfig holds work queue settings
type QueueConfig struct {
	// Driver selects the queue backend: redis or memory.
	Driver string
	// ConsumeDelay is the fixed pause before processing each message.
	ConsumeDelay time.Duration
	// RedeliverDelay is how long a failed message waits before redelivery.
	RedeliverDelay time.Duration
}

// StoreAPIConfig holds source commerce platform API settings
type StoreAPIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// MartanConfig holds destination order-management API settings
type MartanConfig struct {
	BaseURL      string
	OAuthURL     string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration
	// ModuleTag is sent as X-Integration-Module on every call.
	ModuleTag string
}

// SweepConfig holds cadences and limits for the scheduled sweeps
type SweepConfig struct {
	// Token refresh, one cadence per platform.
	TokenRefreshIntervalMartan   time.Duration
	TokenRefreshIntervalEcomplus time.Duration
	TokenRefreshBatch            int
	TokenRefreshHorizon          time.Duration
	// TokenRefreshStagger spaces consecutive refresh calls so a large batch
	// does not burst against the authorization server.
	TokenRefreshStagger time.Duration
	TokenRetentionAge   time.Duration
	TokenRetentionBatch int

	// Delivered-order poll, one cadence per platform variant.
	OrderPollIntervalStandard      time.Duration
	OrderPollIntervalCloudCommerce time.Duration
	OrderPollWindowFrom            time.Duration // lookback start, e.g. 72h
	OrderPollWindowTo              time.Duration // lookback end, e.g. 2h
	OrderPollLimit                 int
	StoreActiveWindow              time.Duration
	InterOrderDelay                time.Duration
	InterStoreDelay                time.Duration

	// Stale pending record re-drive.
	RedriveInterval   time.Duration
	RedriveStaleAfter time.Duration
	RedriveBatch      int
	RedriveDelay      time.Duration

	// Retention over old credentials and terminally failed records.
	RetentionInterval    time.Duration
	RecordRetentionAge   time.Duration
	RecordRetentionBatch int
}

// EnrichmentConfig holds per-item retry settings for order enrichment
type EnrichmentConfig struct {
	MaxItemRetries int
	RetryBaseDelay time.Duration
	RateLimitPause time.Duration
}

// Load loads configuration from TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with ORDERSYNC_ prefix (e.g. ORDERSYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("ORDERSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Queue: QueueConfig{
			Driver:         v.GetString("queue.driver"),
			ConsumeDelay:   v.GetDuration("queue.consume_delay"),
			RedeliverDelay: v.GetDuration("queue.redeliver_delay"),
		},
		StoreAPI: StoreAPIConfig{
			BaseURL: v.GetString("storeapi.base_url"),
			Timeout: v.GetDuration("storeapi.timeout"),
		},
		Martan: MartanConfig{
			BaseURL:      v.GetString("martan.base_url"),
			OAuthURL:     v.GetString("martan.oauth_url"),
			ClientID:     v.GetString("martan.client_id"),
			ClientSecret: v.GetString("martan.client_secret"),
			RedirectURL:  v.GetString("martan.redirect_url"),
			Timeout:      v.GetDuration("martan.timeout"),
			ModuleTag:    v.GetString("martan.module_tag"),
		},
		Sweep: SweepConfig{
			TokenRefreshIntervalMartan:     v.GetDuration("sweep.token_refresh_interval_martan"),
			TokenRefreshIntervalEcomplus:   v.GetDuration("sweep.token_refresh_interval_ecomplus"),
			TokenRefreshBatch:              v.GetInt("sweep.token_refresh_batch"),
			TokenRefreshHorizon:            v.GetDuration("sweep.token_refresh_horizon"),
			TokenRefreshStagger:            v.GetDuration("sweep.token_refresh_stagger"),
			TokenRetentionAge:              v.GetDuration("sweep.token_retention_age"),
			TokenRetentionBatch:            v.GetInt("sweep.token_retention_batch"),
			OrderPollIntervalStandard:      v.GetDuration("sweep.order_poll_interval_standard"),
			OrderPollIntervalCloudCommerce: v.GetDuration("sweep.order_poll_interval_cloudcommerce"),
			OrderPollWindowFrom:            v.GetDuration("sweep.order_poll_window_from"),
			OrderPollWindowTo:              v.GetDuration("sweep.order_poll_window_to"),
			OrderPollLimit:                 v.GetInt("sweep.order_poll_limit"),
			StoreActiveWindow:              v.GetDuration("sweep.store_active_window"),
			InterOrderDelay:                v.GetDuration("sweep.inter_order_delay"),
			InterStoreDelay:                v.GetDuration("sweep.inter_store_delay"),
			RedriveInterval:                v.GetDuration("sweep.redrive_interval"),
			RedriveStaleAfter:              v.GetDuration("sweep.redrive_stale_after"),
			RedriveBatch:                   v.GetInt("sweep.redrive_batch"),
			RedriveDelay:                   v.GetDuration("sweep.redrive_delay"),
			RetentionInterval:              v.GetDuration("sweep.retention_interval"),
			RecordRetentionAge:             v.GetDuration("sweep.record_retention_age"),
			RecordRetentionBatch:           v.GetInt("sweep.record_retention_batch"),
		},
		Enrichment: EnrichmentConfig{
			MaxItemRetries: v.GetInt("enrichment.max_item_retries"),
			RetryBaseDelay: v.GetDuration("enrichment.retry_base_delay"),
			RateLimitPause: v.GetDuration("enrichment.rate_limit_pause"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ordersync-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "ordersync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Queue.Driver == "" {
		cfg.Queue.Driver = "redis"
	}
	if cfg.Queue.ConsumeDelay == 0 {
		cfg.Queue.ConsumeDelay = 3 * time.Second
	}
	if cfg.Queue.RedeliverDelay == 0 {
		cfg.Queue.RedeliverDelay = time.Minute
	}
	if cfg.StoreAPI.BaseURL == "" {
		cfg.StoreAPI.BaseURL = "https://ecomplus.io/v2"
	}
	if cfg.StoreAPI.Timeout == 0 {
		cfg.StoreAPI.Timeout = 10 * time.Second
	}
	if cfg.Martan.BaseURL == "" {
		cfg.Martan.BaseURL = "https://api.martan.app/v1"
	}
	if cfg.Martan.OAuthURL == "" {
		cfg.Martan.OAuthURL = "https://authentication.martan.app"
	}
	if cfg.Martan.Timeout == 0 {
		cfg.Martan.Timeout = 10 * time.Second
	}
	if cfg.Martan.ModuleTag == "" {
		cfg.Martan.ModuleTag = "ordersync-backend@1"
	}
	if cfg.Sweep.TokenRefreshIntervalMartan == 0 {
		cfg.Sweep.TokenRefreshIntervalMartan = 8 * time.Hour
	}
	if cfg.Sweep.TokenRefreshIntervalEcomplus == 0 {
		cfg.Sweep.TokenRefreshIntervalEcomplus = 8 * time.Hour
	}
	if cfg.Sweep.TokenRefreshBatch == 0 {
		cfg.Sweep.TokenRefreshBatch = 40
	}
	if cfg.Sweep.TokenRefreshHorizon == 0 {
		cfg.Sweep.TokenRefreshHorizon = 16 * time.Hour
	}
	if cfg.Sweep.TokenRefreshStagger == 0 {
		cfg.Sweep.TokenRefreshStagger = time.Second
	}
	if cfg.Sweep.TokenRetentionAge == 0 {
		cfg.Sweep.TokenRetentionAge = 30 * 24 * time.Hour
	}
	if cfg.Sweep.TokenRetentionBatch == 0 {
		cfg.Sweep.TokenRetentionBatch = 80
	}
	if cfg.Sweep.OrderPollIntervalStandard == 0 {
		cfg.Sweep.OrderPollIntervalStandard = 6 * time.Hour
	}
	if cfg.Sweep.OrderPollIntervalCloudCommerce == 0 {
		cfg.Sweep.OrderPollIntervalCloudCommerce = 6 * time.Hour
	}
	if cfg.Sweep.OrderPollWindowFrom == 0 {
		cfg.Sweep.OrderPollWindowFrom = 72 * time.Hour
	}
	if cfg.Sweep.OrderPollWindowTo == 0 {
		cfg.Sweep.OrderPollWindowTo = 2 * time.Hour
	}
	if cfg.Sweep.OrderPollLimit == 0 {
		cfg.Sweep.OrderPollLimit = 100
	}
	if cfg.Sweep.StoreActiveWindow == 0 {
		cfg.Sweep.StoreActiveWindow = 48 * time.Hour
	}
	if cfg.Sweep.InterOrderDelay == 0 {
		cfg.Sweep.InterOrderDelay = 5 * time.Second
	}
	if cfg.Sweep.InterStoreDelay == 0 {
		cfg.Sweep.InterStoreDelay = 3 * time.Second
	}
	if cfg.Sweep.RedriveInterval == 0 {
		cfg.Sweep.RedriveInterval = 12 * time.Hour
	}
	if cfg.Sweep.RedriveStaleAfter == 0 {
		cfg.Sweep.RedriveStaleAfter = 48 * time.Hour
	}
	if cfg.Sweep.RedriveBatch == 0 {
		cfg.Sweep.RedriveBatch = 50
	}
	if cfg.Sweep.RedriveDelay == 0 {
		cfg.Sweep.RedriveDelay = time.Second
	}
	if cfg.Sweep.RetentionInterval == 0 {
		cfg.Sweep.RetentionInterval = 24 * time.Hour
	}
	if cfg.Sweep.RecordRetentionAge == 0 {
		cfg.Sweep.RecordRetentionAge = 90 * 24 * time.Hour
	}
	if cfg.Sweep.RecordRetentionBatch == 0 {
		cfg.Sweep.RecordRetentionBatch = 200
	}
	if cfg.Enrichment.MaxItemRetries == 0 {
		cfg.Enrichment.MaxItemRetries = 3
	}
	if cfg.Enrichment.RetryBaseDelay == 0 {
		cfg.Enrichment.RetryBaseDelay = time.Second
	}
	if cfg.Enrichment.RateLimitPause == 0 {
		cfg.Enrichment.RateLimitPause = 2 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Queue.Driver != "redis" && c.Queue.Driver != "memory" {
		return fmt.Errorf("queue.driver must be redis or memory, got %q", c.Queue.Driver)
	}
	if c.Sweep.OrderPollWindowTo >= c.Sweep.OrderPollWindowFrom {
		return fmt.Errorf("sweep.order_poll_window_to must be smaller than sweep.order_poll_window_from")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Martan.ClientID == "" || c.Martan.ClientSecret == "" {
			return fmt.Errorf("martan.client_id and martan.client_secret are required in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the host:port address of the Redis server
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
