package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	assert.Equal(t, "ordersync-backend", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "redis", cfg.Queue.Driver)

	assert.Equal(t, 8*time.Hour, cfg.Sweep.TokenRefreshIntervalMartan)
	assert.Equal(t, 8*time.Hour, cfg.Sweep.TokenRefreshIntervalEcomplus)
	assert.Equal(t, 40, cfg.Sweep.TokenRefreshBatch)
	assert.Equal(t, 16*time.Hour, cfg.Sweep.TokenRefreshHorizon)
	assert.Equal(t, time.Second, cfg.Sweep.TokenRefreshStagger)
	assert.Equal(t, 30*24*time.Hour, cfg.Sweep.TokenRetentionAge)
	assert.Equal(t, 80, cfg.Sweep.TokenRetentionBatch)
	assert.Equal(t, 6*time.Hour, cfg.Sweep.OrderPollIntervalStandard)
	assert.Equal(t, 6*time.Hour, cfg.Sweep.OrderPollIntervalCloudCommerce)
	assert.Equal(t, 72*time.Hour, cfg.Sweep.OrderPollWindowFrom)
	assert.Equal(t, 2*time.Hour, cfg.Sweep.OrderPollWindowTo)
	assert.Equal(t, 100, cfg.Sweep.OrderPollLimit)
	assert.Equal(t, 48*time.Hour, cfg.Sweep.StoreActiveWindow)
	assert.Equal(t, 48*time.Hour, cfg.Sweep.RedriveStaleAfter)
	assert.Equal(t, 50, cfg.Sweep.RedriveBatch)
	assert.Equal(t, 24*time.Hour, cfg.Sweep.RetentionInterval)
	assert.Equal(t, 3, cfg.Enrichment.MaxItemRetries)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.App.Port = "9090"
	cfg.Sweep.OrderPollLimit = 25
	applyDefaults(cfg)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, 25, cfg.Sweep.OrderPollLimit)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	t.Run("defaults pass", func(t *testing.T) {
		assert.NoError(t, base().validate())
	})

	t.Run("rejects an unknown queue driver", func(t *testing.T) {
		cfg := base()
		cfg.Queue.Driver = "kafka"
		assert.Error(t, cfg.validate())
	})

	t.Run("rejects an inverted poll window", func(t *testing.T) {
		cfg := base()
		cfg.Sweep.OrderPollWindowFrom = time.Hour
		cfg.Sweep.OrderPollWindowTo = 2 * time.Hour
		assert.Error(t, cfg.validate())
	})

	t.Run("rejects idle conns above open conns", func(t *testing.T) {
		cfg := base()
		cfg.Database.MaxOpenConns = 2
		cfg.Database.MaxIdleConns = 5
		assert.Error(t, cfg.validate())
	})

	t.Run("production requires hardened settings", func(t *testing.T) {
		cfg := base()
		cfg.App.Env = "production"
		assert.Error(t, cfg.validate())

		cfg.Database.Password = "secret"
		cfg.Database.SSLMode = "require"
		assert.Error(t, cfg.validate())

		cfg.Martan.ClientID = "client"
		cfg.Martan.ClientSecret = "secret"
		assert.NoError(t, cfg.validate())
	})
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ORDERSYNC_DATABASE_HOST", "db.internal")
	t.Setenv("ORDERSYNC_QUEUE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "memory", cfg.Queue.Driver)
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "p@ss w0rd",
		DBName:   "ordersync",
		SSLMode:  "disable",
	}
	dsn := d.DSN()
	assert.Contains(t, dsn, "postgres://postgres:")
	assert.Contains(t, dsn, "@localhost:5432/ordersync")
	assert.Contains(t, dsn, "sslmode=disable")
	assert.NotContains(t, dsn, "p@ss w0rd")
}

func TestRedisAddr(t *testing.T) {
	r := RedisConfig{Host: "cache.internal", Port: 6380}
	assert.Equal(t, "cache.internal:6380", r.Addr())
}
