package telemetry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBConfig configures database instrumentation.
type DBConfig struct {
	TraceEnabled    bool
	LogFullSQL      bool // include bound values in span statements (dev only)
	SlowQueryThresh time.Duration
	DBName          string
}

type queryStartKey struct{}

// dbInstrumentation times every statement, marks slow ones on the active
// span and feeds the query metrics.
type dbInstrumentation struct {
	slowThreshold time.Duration
	queryTotal    *Counter
	queryDuration *Histogram
	slowTotal     *Counter
	logger        *zap.Logger
}

// InstrumentDB registers otelgorm tracing (when enabled), statement timing
// and connection pool gauges on db. A nil meter skips the metrics.
func InstrumentDB(db *gorm.DB, cfg DBConfig, meter metric.Meter, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}

	if cfg.TraceEnabled {
		opts := []otelgorm.Option{}
		if cfg.DBName != "" {
			opts = append(opts, otelgorm.WithDBName(cfg.DBName))
		}
		if !cfg.LogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return err
		}
	}

	inst := &dbInstrumentation{slowThreshold: cfg.SlowQueryThresh, logger: logger}
	if meter != nil {
		var err error
		if inst.queryTotal, err = NewCounter(meter, "db_query_total", "Database statements by operation", "{query}"); err != nil {
			return err
		}
		if inst.slowTotal, err = NewCounter(meter, "db_slow_query_total", "Database statements slower than the threshold", "{query}"); err != nil {
			return err
		}
		if inst.queryDuration, err = NewHistogram(meter, HistogramOpts{
			Name:        "db_query_duration_seconds",
			Description: "Database statement latency",
			Unit:        "s",
			Boundaries:  DBDurationBuckets,
		}); err != nil {
			return err
		}
		if err := registerPoolGauges(db, meter); err != nil {
			return err
		}
	}

	if err := inst.register(db); err != nil {
		return err
	}

	logger.Info("Database instrumentation enabled",
		zap.Bool("tracing", cfg.TraceEnabled),
		zap.Bool("metrics", meter != nil),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
	)
	return nil
}

func (i *dbInstrumentation) register(db *gorm.DB) error {
	cb := db.Callback()
	after := func(op string) func(*gorm.DB) {
		return func(tx *gorm.DB) { i.after(tx, op) }
	}
	steps := []func() error{
		func() error { return cb.Create().Before("gorm:create").Register("tds_timing:before_create", i.before) },
		func() error { return cb.Query().Before("gorm:query").Register("tds_timing:before_query", i.before) },
		func() error { return cb.Update().Before("gorm:update").Register("tds_timing:before_update", i.before) },
		func() error { return cb.Delete().Before("gorm:delete").Register("tds_timing:before_delete", i.before) },
		func() error { return cb.Row().Before("gorm:row").Register("tds_timing:before_row", i.before) },
		func() error { return cb.Raw().Before("gorm:raw").Register("tds_timing:before_raw", i.before) },
		func() error { return cb.Create().After("gorm:create").Register("tds_timing:after_create", after("create")) },
		func() error { return cb.Query().After("gorm:query").Register("tds_timing:after_query", after("query")) },
		func() error { return cb.Update().After("gorm:update").Register("tds_timing:after_update", after("update")) },
		func() error { return cb.Delete().After("gorm:delete").Register("tds_timing:after_delete", after("delete")) },
		func() error { return cb.Row().After("gorm:row").Register("tds_timing:after_row", after("row")) },
		func() error { return cb.Raw().After("gorm:raw").Register("tds_timing:after_raw", after("raw")) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (i *dbInstrumentation) before(tx *gorm.DB) {
	if tx.Statement.Context != nil {
		tx.Statement.Context = context.WithValue(tx.Statement.Context, queryStartKey{}, time.Now())
	}
}

func (i *dbInstrumentation) after(tx *gorm.DB, callback string) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	elapsed := time.Since(start)
	op := operationOf(callback, tx.Statement.SQL.String())
	attrs := []attribute.KeyValue{AttrDBOperation.String(op), AttrDBTable.String(tx.Statement.Table)}

	if i.queryTotal != nil {
		i.queryTotal.Inc(ctx, attrs...)
		i.queryDuration.RecordDuration(ctx, elapsed, attrs...)
	}

	slow := elapsed > i.slowThreshold
	if slow && i.slowTotal != nil {
		i.slowTotal.Inc(ctx, attrs...)
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", tx.Statement.RowsAffected))
	if slow {
		span.SetAttributes(attribute.Bool("db.slow_query", true))
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", i.slowThreshold.Milliseconds()),
		))
	}
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		RecordError(span, tx.Error)
	}
}

// operationOf names the statement. Raw and row callbacks carry arbitrary
// SQL, so their verb is read from the statement text.
func operationOf(callback, sql string) string {
	switch callback {
	case "create":
		return "insert"
	case "query":
		return "select"
	case "update", "delete":
		return callback
	}
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "other"
	}
	switch verb := strings.ToLower(fields[0]); verb {
	case "select", "insert", "update", "delete", "with":
		return verb
	default:
		return "other"
	}
}

// registerPoolGauges reports database/sql pool statistics on every
// collection cycle.
func registerPoolGauges(db *gorm.DB, meter metric.Meter) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	conns, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}
	maxConns, err := meter.Int64ObservableGauge("db_pool_connections_max",
		metric.WithDescription("Maximum open connections"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}
	waits, err := meter.Int64ObservableCounter("db_pool_wait_total",
		metric.WithDescription("Connections waited for"),
		metric.WithUnit("{wait}"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(conns, int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(conns, int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(maxConns, int64(stats.MaxOpenConnections))
		o.ObserveInt64(waits, stats.WaitCount)
		return nil
	}, conns, maxConns, waits)
	return err
}
