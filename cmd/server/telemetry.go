package main

import (
	"context"

	"github.com/erp/backoffice/internal/infrastructure/config"
	"github.com/erp/backoffice/internal/infrastructure/migration"
	"github.com/erp/backoffice/internal/infrastructure/persistence"
	"github.com/erp/backoffice/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// observability holds the OTEL providers for the lifetime of the process
type observability struct {
	tracer  *telemetry.TracerProvider
	meter   *telemetry.MeterProvider
	logs    *telemetry.LoggerProvider
	billing *telemetry.BillingMetrics
	pool    *telemetry.DBPoolMetrics
}

func setupTelemetry(ctx context.Context, cfg *config.Config, log *zap.Logger) (*observability, error) {
	tc := cfg.Telemetry
	o := &observability{}

	var err error
	o.tracer, err = telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           tc.Enabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		SamplingRatio:     tc.SamplingRatio,
		ServiceName:       tc.ServiceName,
		ServiceVersion:    version,
		Insecure:          tc.Insecure,
	}, log)
	if err != nil {
		return nil, err
	}

	o.meter, err = telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           tc.MetricsEnabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		ExportInterval:    tc.MetricsInterval,
		ServiceName:       tc.ServiceName,
		ServiceVersion:    version,
		Insecure:          tc.Insecure,
	}, log)
	if err != nil {
		o.shutdown(ctx, log)
		return nil, err
	}
	if o.meter.IsEnabled() {
		o.billing, err = telemetry.NewBillingMetrics(o.meter.Meter(telemetry.TracerName))
		if err != nil {
			o.shutdown(ctx, log)
			return nil, err
		}
	}

	o.logs, err = telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           tc.LogsEnabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		ServiceName:       tc.ServiceName,
		ServiceVersion:    version,
		Insecure:          tc.Insecure,
	}, log)
	if err != nil {
		o.shutdown(ctx, log)
		return nil, err
	}
	return o, nil
}

// bridge mirrors log entries at or above the configured level to the collector
func (o *observability) bridge(log *zap.Logger, cfg *config.Config) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	return telemetry.Bridge(log, o.logs, cfg.App.Name, level)
}

// instrumentDatabase registers query tracing and pool gauges
func (o *observability) instrumentDatabase(db *persistence.Database, cfg *config.Config, log *zap.Logger) error {
	tc := cfg.Telemetry
	if tc.DBTraceEnabled {
		dbSystem := "postgresql"
		if cfg.Database.Driver == migration.DriverSQLite {
			dbSystem = "sqlite"
		}
		plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			LogFullSQL:      tc.DBLogFullSQL,
			SlowQueryThresh: tc.DBSlowQueryThresh,
			DBSystem:        dbSystem,
		}, log)
		if err := plugin.Register(db.DB); err != nil {
			return err
		}
	}

	if o.meter.IsEnabled() {
		sqlDB, err := db.DB.DB()
		if err != nil {
			return err
		}
		o.pool, err = telemetry.NewDBPoolMetrics(o.meter.Meter(telemetry.TracerName), sqlDB)
		if err != nil {
			return err
		}
	}
	return nil
}

// shutdown flushes and stops every provider that was started
func (o *observability) shutdown(ctx context.Context, log *zap.Logger) {
	if o.pool != nil {
		if err := o.pool.Stop(); err != nil {
			log.Warn("Failed to stop pool metrics", zap.Error(err))
		}
	}
	if o.logs != nil {
		if err := o.logs.Shutdown(ctx); err != nil {
			log.Warn("Failed to shutdown logger provider", zap.Error(err))
		}
	}
	if o.meter != nil {
		if err := o.meter.Shutdown(ctx); err != nil {
			log.Warn("Failed to shutdown meter provider", zap.Error(err))
		}
	}
	if o.tracer != nil {
		if err := o.tracer.Shutdown(ctx); err != nil {
			log.Warn("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
}
