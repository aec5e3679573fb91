package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "backoffice", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "backoffice", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.False(t, cfg.Redis.Enabled)
		assert.Equal(t, 10*time.Second, cfg.Redis.LockTTL)
		assert.False(t, cfg.Kafka.Enabled)
		assert.Equal(t, "payment-notifications", cfg.Kafka.Topic)
		assert.Equal(t, "backoffice", cfg.Kafka.ClientID)
		assert.Equal(t, RefundGuardMemory, cfg.Billing.RefundGuard)
		assert.Equal(t, "MAD", cfg.Billing.Currency)
		assert.False(t, cfg.Billing.ResyncEnabled)
		assert.Equal(t, 5*time.Minute, cfg.Billing.ResyncInterval)
		assert.Equal(t, time.Hour, cfg.Billing.ResyncLookback)
		assert.Equal(t, 2, cfg.Billing.ResyncWorkers)
		assert.Equal(t, 500, cfg.Billing.ResyncBatch)
		assert.Equal(t, "console", cfg.Log.Format)
		assert.Equal(t, 15*time.Second, cfg.HTTP.RequestTimeout)
		assert.True(t, cfg.HTTP.Tracing)
		assert.False(t, cfg.Database.AutoMigrate)
		assert.False(t, cfg.Telemetry.Enabled)
		assert.Equal(t, "localhost:4317", cfg.Telemetry.CollectorEndpoint)
		assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
		assert.Equal(t, "backoffice", cfg.Telemetry.ServiceName)
		assert.Equal(t, time.Minute, cfg.Telemetry.MetricsInterval)
		assert.Equal(t, 200*time.Millisecond, cfg.Telemetry.DBSlowQueryThresh)
	})

	t.Run("loads values from environment variables with BACKOFFICE prefix", func(t *testing.T) {
		t.Setenv("BACKOFFICE_APP_NAME", "test-app")
		t.Setenv("BACKOFFICE_APP_PORT", "9000")
		t.Setenv("BACKOFFICE_DATABASE_HOST", "testdb.local")
		t.Setenv("BACKOFFICE_DATABASE_PORT", "5433")
		t.Setenv("BACKOFFICE_DATABASE_MAX_OPEN_CONNS", "50")
		t.Setenv("BACKOFFICE_DATABASE_MAX_IDLE_CONNS", "10")
		t.Setenv("BACKOFFICE_REDIS_ENABLED", "true")
		t.Setenv("BACKOFFICE_REDIS_LOCK_TTL", "3s")
		t.Setenv("BACKOFFICE_KAFKA_TOPIC", "billing")
		t.Setenv("BACKOFFICE_BILLING_REFUND_GUARD", "redis")
		t.Setenv("BACKOFFICE_BILLING_CURRENCY", "EUR")
		t.Setenv("BACKOFFICE_BILLING_RESYNC_ENABLED", "true")
		t.Setenv("BACKOFFICE_BILLING_RESYNC_INTERVAL", "30s")
		t.Setenv("BACKOFFICE_HTTP_TRACING", "false")
		t.Setenv("BACKOFFICE_HTTP_REQUEST_TIMEOUT", "5s")
		t.Setenv("BACKOFFICE_DATABASE_AUTO_MIGRATE", "true")
		t.Setenv("BACKOFFICE_TELEMETRY_ENABLED", "true")
		t.Setenv("BACKOFFICE_TELEMETRY_SAMPLING_RATIO", "0.25")
		t.Setenv("BACKOFFICE_TELEMETRY_METRICS_ENABLED", "true")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, 3*time.Second, cfg.Redis.LockTTL)
		assert.Equal(t, "billing", cfg.Kafka.Topic)
		assert.Equal(t, RefundGuardRedis, cfg.Billing.RefundGuard)
		assert.Equal(t, "EUR", cfg.Billing.Currency)
		assert.True(t, cfg.Billing.ResyncEnabled)
		assert.Equal(t, 30*time.Second, cfg.Billing.ResyncInterval)
		assert.False(t, cfg.HTTP.Tracing)
		assert.Equal(t, 5*time.Second, cfg.HTTP.RequestTimeout)
		assert.True(t, cfg.Database.AutoMigrate)
		assert.True(t, cfg.Telemetry.Enabled)
		assert.True(t, cfg.Telemetry.MetricsEnabled)
		assert.Equal(t, 0.25, cfg.Telemetry.SamplingRatio)
		assert.Equal(t, "test-app", cfg.Telemetry.ServiceName)
	})

	t.Run("rejects sampling ratio above one", func(t *testing.T) {
		t.Setenv("BACKOFFICE_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry.sampling_ratio")
	})

	t.Run("rejects a sub-second resync interval", func(t *testing.T) {
		t.Setenv("BACKOFFICE_BILLING_RESYNC_ENABLED", "true")
		t.Setenv("BACKOFFICE_BILLING_RESYNC_INTERVAL", "100ms")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "billing.resync_interval")
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		t.Setenv("BACKOFFICE_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("BACKOFFICE_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("validates MaxIdleConns cannot be negative", func(t *testing.T) {
		t.Setenv("BACKOFFICE_DATABASE_MAX_IDLE_CONNS", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns cannot be negative")
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		t.Setenv("BACKOFFICE_DATABASE_DRIVER", "mysql")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})
}

func TestLoad_RefundGuard(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "redis guard requires redis",
			env:     map[string]string{"BACKOFFICE_BILLING_REFUND_GUARD": "redis"},
			wantErr: "requires redis.enabled",
		},
		{
			name: "advisory guard requires postgres",
			env: map[string]string{
				"BACKOFFICE_BILLING_REFUND_GUARD": "advisory",
				"BACKOFFICE_DATABASE_DRIVER":      "sqlite",
			},
			wantErr: "requires the postgres driver",
		},
		{
			name:    "unknown guard",
			env:     map[string]string{"BACKOFFICE_BILLING_REFUND_GUARD": "mutex"},
			wantErr: "must be one of",
		},
		{
			name: "advisory on postgres",
			env:  map[string]string{"BACKOFFICE_BILLING_REFUND_GUARD": "advisory"},
		},
		{
			name: "none outside production",
			env:  map[string]string{"BACKOFFICE_BILLING_REFUND_GUARD": "none"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		t.Setenv("BACKOFFICE_APP_ENV", "production")
		t.Setenv("BACKOFFICE_DATABASE_PASSWORD", "secure-password")
		t.Setenv("BACKOFFICE_DATABASE_SSLMODE", "require")
		t.Setenv("BACKOFFICE_HTTP_CORS_ALLOW_ORIGINS", "https://backoffice.example.com")
	}

	t.Run("requires database.password in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("BACKOFFICE_DATABASE_PASSWORD", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("BACKOFFICE_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("refuses an unguarded refund path in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("BACKOFFICE_BILLING_REFUND_GUARD", "none")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "refund_guard cannot be 'none'")
	})

	t.Run("rejects wildcard CORS in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("BACKOFFICE_HTTP_CORS_ALLOW_ORIGINS", "*")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cors_allow_origins")
	})

	t.Run("refuses full SQL in traces in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("BACKOFFICE_TELEMETRY_DB_LOG_FULL_SQL", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db_log_full_sql")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
		assert.Equal(t, "json", cfg.Log.Format)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})

	t.Run("sqlite uses the file path", func(t *testing.T) {
		cfg := DatabaseConfig{Driver: "sqlite", Path: ":memory:"}
		assert.Equal(t, ":memory:", cfg.DSN())
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	assert.Equal(t, "cache:6380", RedisConfig{Host: "cache", Port: 6380}.Addr())
}
