package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// PaymentMetrics tracks the OTP-gated payment workflow: codes issued and
// verified, rate-limit vetoes, finalized payments and the challenge backlog.
// A nil *PaymentMetrics is valid and records nothing.
type PaymentMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	otpIssuedTotal      *Counter
	otpVerifyTotal      *Counter
	otpRateLimitedTotal *Counter
	otpDeliveryFailures *Counter
	paymentTotal        *Counter
	paymentAmountTotal  *Counter
	confirmDuration     *Histogram

	pendingOrders    *Gauge
	activeChallenges *Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	statsProvider WorkflowStatsProvider
}

// WorkflowStatsProvider supplies point-in-time counts for the periodic gauges.
type WorkflowStatsProvider interface {
	CountPendingOrders(ctx context.Context) (int64, error)
	CountActiveChallenges(ctx context.Context, now time.Time) (int64, error)
}

// PaymentMetricsConfig holds configuration for payment metrics.
type PaymentMetricsConfig struct {
	Meter         metric.Meter
	Logger        *zap.Logger
	StatsProvider WorkflowStatsProvider
}

// OtpOutcome labels a verification attempt.
type OtpOutcome string

const (
	OtpOutcomeVerified        OtpOutcome = "verified"
	OtpOutcomeMismatch        OtpOutcome = "mismatch"
	OtpOutcomeExpired         OtpOutcome = "expired"
	OtpOutcomeAlreadyVerified OtpOutcome = "already_verified"
	OtpOutcomeNotFound        OtpOutcome = "not_found"
	OtpOutcomeError           OtpOutcome = "error"
)

// PaymentStatus labels the outcome of a finalization attempt.
type PaymentStatus string

const (
	PaymentStatusSuccess  PaymentStatus = "success"
	PaymentStatusConflict PaymentStatus = "conflict"
	PaymentStatusFailed   PaymentStatus = "failed"
)

// NewPaymentMetrics creates a new PaymentMetrics instance.
func NewPaymentMetrics(cfg PaymentMetricsConfig) (*PaymentMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pm := &PaymentMetrics{
		meter:         cfg.Meter,
		logger:        logger,
		stopChan:      make(chan struct{}),
		statsProvider: cfg.StatsProvider,
	}

	counters := []struct {
		dst              **Counter
		name, desc, unit string
	}{
		{&pm.otpIssuedTotal, "tds_otp_issued_total", "Total number of one-time codes issued", "{codes}"},
		{&pm.otpVerifyTotal, "tds_otp_verify_total", "Total number of code verification attempts", "{attempts}"},
		{&pm.otpRateLimitedTotal, "tds_otp_rate_limited_total", "Total number of sends vetoed by the rate limiter", "{requests}"},
		{&pm.otpDeliveryFailures, "tds_otp_delivery_failures_total", "Total number of failed code deliveries", "{deliveries}"},
		{&pm.paymentTotal, "tds_payment_total", "Total number of payment finalization attempts", "{payments}"},
		{&pm.paymentAmountTotal, "tds_payment_amount_total", "Total amount of succeeded payments in minor units", "{cents}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(cfg.Meter, c.name, c.desc, c.unit)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	var err error
	pm.confirmDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "tds_payment_confirm_duration_seconds",
		Description: "Duration of payment confirmation including code verification",
		Unit:        "s",
		Boundaries:  []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})
	if err != nil {
		return nil, err
	}

	pm.pendingOrders, err = NewGauge(cfg.Meter, "tds_orders_pending", "Orders awaiting payment", "{orders}")
	if err != nil {
		return nil, err
	}
	pm.activeChallenges, err = NewGauge(cfg.Meter, "tds_otp_active_challenges", "Unexpired unverified challenges", "{challenges}")
	if err != nil {
		return nil, err
	}

	return pm, nil
}

// RecordOtpIssued records an issued code.
func (pm *PaymentMetrics) RecordOtpIssued(ctx context.Context, purpose, channel string) {
	if pm == nil {
		return
	}
	pm.otpIssuedTotal.Inc(ctx, AttrOtpPurpose.String(purpose), AttrChannel.String(channel))
}

// RecordOtpVerify records a verification attempt and its outcome.
func (pm *PaymentMetrics) RecordOtpVerify(ctx context.Context, purpose string, outcome OtpOutcome) {
	if pm == nil {
		return
	}
	pm.otpVerifyTotal.Inc(ctx, AttrOtpPurpose.String(purpose), AttrOtpOutcome.String(string(outcome)))
}

// RecordOtpRateLimited records a send vetoed by the rate limiter.
func (pm *PaymentMetrics) RecordOtpRateLimited(ctx context.Context, purpose string) {
	if pm == nil {
		return
	}
	pm.otpRateLimitedTotal.Inc(ctx, AttrOtpPurpose.String(purpose))
}

// RecordDeliveryFailure records a code that could not be delivered.
func (pm *PaymentMetrics) RecordDeliveryFailure(ctx context.Context, channel string) {
	if pm == nil {
		return
	}
	pm.otpDeliveryFailures.Inc(ctx, AttrChannel.String(channel))
}

// RecordPayment records a finalization attempt. The amount is only added for
// succeeded payments.
func (pm *PaymentMetrics) RecordPayment(ctx context.Context, method, flow string, status PaymentStatus, amount decimal.Decimal) {
	if pm == nil {
		return
	}
	pm.paymentTotal.Inc(ctx,
		AttrPaymentMethod.String(method),
		AttrPaymentFlow.String(flow),
		AttrPaymentStatus.String(string(status)),
	)
	if status == PaymentStatusSuccess {
		pm.paymentAmountTotal.Add(ctx, amount.Mul(decimal.NewFromInt(100)).IntPart(),
			AttrPaymentMethod.String(method),
		)
	}
}

// RecordConfirmDuration records how long a confirmation took.
func (pm *PaymentMetrics) RecordConfirmDuration(ctx context.Context, method string, d time.Duration) {
	if pm == nil {
		return
	}
	pm.confirmDuration.RecordDuration(ctx, d, AttrPaymentMethod.String(method))
}

// StartPeriodicCollection refreshes the backlog gauges every interval
// (default 5 minutes) until Stop is called or ctx is done.
func (pm *PaymentMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	if pm == nil {
		return
	}
	pm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		go pm.runPeriodicCollection(ctx, interval)
	})
}

func (pm *PaymentMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.collect(ctx)

	for {
		select {
		case <-pm.stopChan:
			pm.logger.Info("Stopping periodic payment metrics collection")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.collect(ctx)
		}
	}
}

func (pm *PaymentMetrics) collect(ctx context.Context) {
	if pm.statsProvider == nil {
		return
	}

	if n, err := pm.statsProvider.CountPendingOrders(ctx); err != nil {
		pm.logger.Warn("Failed to count pending orders", zap.Error(err))
	} else {
		pm.pendingOrders.Record(ctx, n)
	}

	if n, err := pm.statsProvider.CountActiveChallenges(ctx, time.Now().UTC()); err != nil {
		pm.logger.Warn("Failed to count active challenges", zap.Error(err))
	} else {
		pm.activeChallenges.Record(ctx, n)
	}
}

// Stop stops the periodic collection.
func (pm *PaymentMetrics) Stop() {
	if pm == nil {
		return
	}
	pm.stopOnce.Do(func() {
		close(pm.stopChan)
	})
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewPaymentMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
