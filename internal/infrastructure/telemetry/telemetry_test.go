package telemetry_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/techdigits/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader, mp
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestSetup_Disabled(t *testing.T) {
	p, err := telemetry.Setup(context.Background(), telemetry.Config{ServiceName: "test"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, p.TracesEnabled())
	assert.False(t, p.MetricsEnabled())
	assert.Nil(t, p.LoggerProvider())
	assert.NotNil(t, p.Meter("test"))
	assert.NoError(t, p.Shutdown(context.Background()))

	p.EnableSpanProfiles()
}

func TestNewZapCore_DisabledIsNop(t *testing.T) {
	p, err := telemetry.Setup(context.Background(), telemetry.Config{}, nil)
	require.NoError(t, err)

	core := p.NewZapCore(zapcore.InfoLevel)
	assert.False(t, core.Enabled(zapcore.ErrorLevel))

	var nilProviders *telemetry.Providers
	assert.False(t, nilProviders.NewZapCore(zapcore.DebugLevel).Enabled(zapcore.ErrorLevel))
}

func TestInstruments(t *testing.T) {
	reader, mp := newTestMeter(t)
	meter := mp.Meter("test")
	ctx := context.Background()

	counter, err := telemetry.NewCounter(meter, "c_total", "counter", "{x}")
	require.NoError(t, err)
	counter.Inc(ctx)
	counter.Add(ctx, 4)

	updown, err := telemetry.NewUpDownCounter(meter, "in_flight", "in flight", "{x}")
	require.NoError(t, err)
	updown.Add(ctx, 3)
	updown.Add(ctx, -1)

	hist, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name: "latency", Unit: "s", Boundaries: telemetry.HTTPDurationBuckets,
	})
	require.NoError(t, err)
	hist.RecordDuration(ctx, 250*time.Millisecond)
	hist.Record(ctx, 1.5)

	gauge, err := telemetry.NewGauge(meter, "depth", "depth", "{x}")
	require.NoError(t, err)
	gauge.Record(ctx, 7)

	metrics := collect(t, reader)
	assert.EqualValues(t, 5, sumOf(t, metrics["c_total"]))
	assert.EqualValues(t, 2, sumOf(t, metrics["in_flight"]))

	h := metrics["latency"].Data.(metricdata.Histogram[float64])
	require.Len(t, h.DataPoints, 1)
	assert.EqualValues(t, 2, h.DataPoints[0].Count)
	assert.InDelta(t, 1.75, h.DataPoints[0].Sum, 1e-9)

	g := metrics["depth"].Data.(metricdata.Gauge[int64])
	require.Len(t, g.DataPoints, 1)
	assert.EqualValues(t, 7, g.DataPoints[0].Value)
}

type stubStats struct {
	pending, active int64
}

func (s stubStats) CountPendingOrders(context.Context) (int64, error) { return s.pending, nil }
func (s stubStats) CountActiveChallenges(context.Context, time.Time) (int64, error) {
	return s.active, nil
}

func TestPaymentMetrics(t *testing.T) {
	reader, mp := newTestMeter(t)
	ctx := context.Background()

	pm, err := telemetry.NewPaymentMetrics(telemetry.PaymentMetricsConfig{
		Meter:         mp.Meter("payments"),
		Logger:        zap.NewNop(),
		StatsProvider: stubStats{pending: 4, active: 2},
	})
	require.NoError(t, err)

	pm.RecordOtpIssued(ctx, "payment", "sms")
	pm.RecordOtpVerify(ctx, "payment", telemetry.OtpOutcomeMismatch)
	pm.RecordOtpVerify(ctx, "payment", telemetry.OtpOutcomeVerified)
	pm.RecordOtpRateLimited(ctx, "reset")
	pm.RecordDeliveryFailure(ctx, "email")
	pm.RecordPayment(ctx, "card", "otp", telemetry.PaymentStatusSuccess, decimal.RequireFromString("12.50"))
	pm.RecordPayment(ctx, "card", "otp", telemetry.PaymentStatusConflict, decimal.RequireFromString("12.50"))
	pm.RecordConfirmDuration(ctx, "card", 120*time.Millisecond)

	pm.StartPeriodicCollection(ctx, time.Hour)
	require.Eventually(t, func() bool {
		m, ok := collect(t, reader)["tds_orders_pending"]
		if !ok {
			return false
		}
		g := m.Data.(metricdata.Gauge[int64])
		return len(g.DataPoints) == 1 && g.DataPoints[0].Value == 4
	}, time.Second, 10*time.Millisecond)
	pm.Stop()
	pm.Stop()

	metrics := collect(t, reader)
	assert.EqualValues(t, 1, sumOf(t, metrics["tds_otp_issued_total"]))
	assert.EqualValues(t, 2, sumOf(t, metrics["tds_otp_verify_total"]))
	assert.EqualValues(t, 1, sumOf(t, metrics["tds_otp_rate_limited_total"]))
	assert.EqualValues(t, 1, sumOf(t, metrics["tds_otp_delivery_failures_total"]))
	assert.EqualValues(t, 2, sumOf(t, metrics["tds_payment_total"]))
	assert.EqualValues(t, 1250, sumOf(t, metrics["tds_payment_amount_total"]))

	active := metrics["tds_otp_active_challenges"].Data.(metricdata.Gauge[int64])
	require.Len(t, active.DataPoints, 1)
	assert.EqualValues(t, 2, active.DataPoints[0].Value)
}

func TestPaymentMetrics_NilMeter(t *testing.T) {
	_, err := telemetry.NewPaymentMetrics(telemetry.PaymentMetricsConfig{})
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
}

func TestPaymentMetrics_NilReceiverIsSafe(t *testing.T) {
	var pm *telemetry.PaymentMetrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		pm.RecordOtpIssued(ctx, "payment", "sms")
		pm.RecordOtpVerify(ctx, "payment", telemetry.OtpOutcomeExpired)
		pm.RecordOtpRateLimited(ctx, "payment")
		pm.RecordDeliveryFailure(ctx, "sms")
		pm.RecordPayment(ctx, "cash", "direct", telemetry.PaymentStatusSuccess, decimal.NewFromInt(1))
		pm.RecordConfirmDuration(ctx, "card", time.Second)
		pm.StartPeriodicCollection(ctx, time.Second)
		pm.Stop()
	})
}

type widget struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func TestInstrumentDB(t *testing.T) {
	reader, mp := newTestMeter(t)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "db.sqlite")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, telemetry.InstrumentDB(db, telemetry.DBConfig{
		TraceEnabled:    true,
		SlowQueryThresh: time.Nanosecond,
	}, mp.Meter("db"), zaptest.NewLogger(t)))

	ctx := context.Background()
	require.NoError(t, db.WithContext(ctx).AutoMigrate(&widget{}))
	require.NoError(t, db.WithContext(ctx).Create(&widget{Name: "a"}).Error)

	var got widget
	require.NoError(t, db.WithContext(ctx).First(&got).Error)
	require.NoError(t, db.WithContext(ctx).Model(&got).Update("name", "b").Error)

	metrics := collect(t, reader)
	assert.GreaterOrEqual(t, sumOf(t, metrics["db_query_total"]), int64(3))
	assert.GreaterOrEqual(t, sumOf(t, metrics["db_slow_query_total"]), int64(3))
	assert.Contains(t, metrics, "db_query_duration_seconds")
	assert.Contains(t, metrics, "db_pool_connections")
}

func TestInstrumentDB_WithoutMeter(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "db.sqlite")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, telemetry.InstrumentDB(db, telemetry.DBConfig{}, nil, nil))

	require.NoError(t, db.AutoMigrate(&widget{}))
	assert.NoError(t, db.Create(&widget{Name: "x"}).Error)
}

func TestNewProfiler(t *testing.T) {
	p, err := telemetry.NewProfiler(telemetry.ProfilerConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())

	_, err = telemetry.NewProfiler(telemetry.ProfilerConfig{Enabled: true, ApplicationName: "x"}, nil)
	assert.Error(t, err)
	_, err = telemetry.NewProfiler(telemetry.ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"}, nil)
	assert.Error(t, err)
}
