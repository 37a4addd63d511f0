package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	identityapp "github.com/techdigits/backend/internal/application/identity"
	orderapp "github.com/techdigits/backend/internal/application/order"
	otpapp "github.com/techdigits/backend/internal/application/otp"
	paymentapp "github.com/techdigits/backend/internal/application/payment"
	"github.com/techdigits/backend/internal/domain/otp"
	"github.com/techdigits/backend/internal/domain/payment"
	"github.com/techdigits/backend/internal/domain/shared"
	"github.com/techdigits/backend/internal/infrastructure/auth"
	"github.com/techdigits/backend/internal/infrastructure/cache"
	"github.com/techdigits/backend/internal/infrastructure/config"
	"github.com/techdigits/backend/internal/infrastructure/logger"
	"github.com/techdigits/backend/internal/infrastructure/notification"
	"github.com/techdigits/backend/internal/infrastructure/persistence"
	"github.com/techdigits/backend/internal/infrastructure/scheduler"
	"github.com/techdigits/backend/internal/infrastructure/telemetry"
	"github.com/techdigits/backend/internal/interfaces/http/handler"
	"github.com/techdigits/backend/internal/interfaces/http/middleware"
	"github.com/techdigits/backend/internal/interfaces/http/router"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// application holds the wired services and everything that needs closing.
type application struct {
	handlers router.Handlers
	guards   router.Guards
	sweeper  *scheduler.CleanupSweeper
	metrics  *telemetry.PaymentMetrics
	closers  []io.Closer
}

func (a *application) close(log *zap.Logger) {
	a.metrics.Stop()
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			log.Warn("Error closing resource", zap.Error(err))
		}
	}
}

func buildApp(cfg *config.Config, db *persistence.Database, providers *telemetry.Providers, log *zap.Logger) (*application, error) {
	app := &application{}
	clock := shared.SystemClock()

	orderRepo := persistence.NewGormOrderRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(db.DB)
	challengeRepo := persistence.NewGormChallengeRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	userRepo := persistence.NewGormUserRepository(db.DB)

	if providers.MetricsEnabled() {
		metrics, err := telemetry.NewPaymentMetrics(telemetry.PaymentMetricsConfig{
			Meter:         providers.Meter("payment"),
			Logger:        log,
			StatsProvider: persistence.NewWorkflowStats(db.DB),
		})
		if err != nil {
			return nil, fmt.Errorf("payment metrics: %w", err)
		}
		metrics.StartPeriodicCollection(context.Background(), 0)
		app.metrics = metrics
	}

	store, err := cache.NewIdempotencyStoreFactory(cfg.Redis, cache.WithLogger(log)).CreateStore()
	if err != nil {
		return nil, err
	}
	if c, ok := store.(io.Closer); ok {
		app.closers = append(app.closers, c)
	}

	var blacklist auth.TokenBlacklist
	if rs, ok := store.(*cache.RedisIdempotencyStore); ok {
		blacklist = auth.NewRedisTokenBlacklistWithClient(rs.GetClient(), clock)
	} else {
		blacklist = auth.NewInMemoryTokenBlacklist(clock)
	}

	authority := otpapp.NewAuthority(challengeRepo, otp.NewBcryptHasher(cfg.OTP.BcryptCost), otpConfig(cfg.OTP), log,
		otpapp.WithClock(clock),
		otpapp.WithMetrics(app.metrics),
	)
	notifier := newNotifier(cfg, log)
	ledger := orderapp.NewLedger(orderRepo, productRepo, clock)

	paymentCfg, err := paymentConfig(cfg.Payment)
	if err != nil {
		return nil, err
	}
	processor := paymentapp.NewProcessor(paymentapp.Dependencies{
		Ledger:      ledger,
		Authority:   authority,
		Payments:    paymentRepo,
		Users:       userRepo,
		Notifier:    notifier,
		Transactor:  db.Transactor(),
		Idempotency: store,
		Clock:       clock,
		Metrics:     app.metrics,
		Logger:      log,
	}, paymentCfg)

	jwtService := auth.NewJWTService(cfg.JWT)
	authService := identityapp.NewAuthService(identityapp.AuthServiceDeps{
		Users:     userRepo,
		Authority: authority,
		Notifier:  notifier,
		JWT:       jwtService,
		Consumed:  store,
		Blacklist: blacklist,
		Clock:     clock,
		Logger:    log,
	})

	app.sweeper = scheduler.NewCleanupSweeper(authority, log, scheduler.CleanupSweeperConfig{
		Enabled:      cfg.Cleanup.Enabled,
		InitialDelay: cfg.Cleanup.InitialDelay,
		Interval:     cfg.Cleanup.Interval,
		Timeout:      cfg.Cleanup.Timeout,
	})

	app.handlers = router.Handlers{
		Auth:     handler.NewAuthHandler(authService),
		Orders:   handler.NewOrderHandler(ledger),
		Payments: handler.NewPaymentHandler(processor),
		Admin:    handler.NewAdminHandler(processor),
	}
	app.guards = router.Guards{
		Authenticated: middleware.JWTAuthMiddleware(middleware.JWTMiddlewareConfig{
			JWTService:     jwtService,
			TokenBlacklist: blacklist,
			Logger:         log,
		}),
		AdminOnly: middleware.AdminOnly(),
	}
	return app, nil
}

func otpConfig(c config.OTPConfig) otpapp.Config {
	return otpapp.Config{
		Policies: map[otp.Purpose]otpapp.Policy{
			otp.PurposePayment: {
				TTL: c.PaymentTTL,
				RateLimit: otp.RateLimitPolicy{
					Cooldown: c.PaymentCooldown,
					Window:   c.PaymentWindow,
					MaxSends: c.PaymentMaxSends,
				},
			},
			otp.PurposePasswordReset: {
				TTL: c.ResetTTL,
				RateLimit: otp.RateLimitPolicy{
					Cooldown: c.ResetCooldown,
					Window:   c.ResetWindow,
					MaxSends: c.ResetMaxSends,
				},
			},
		},
		VerifiedGrace:     c.VerifiedGrace,
		VerifiedRetention: c.VerifiedRetention,
	}
}

func paymentConfig(c config.PaymentConfig) (paymentapp.Config, error) {
	raw := make(map[string]paymentapp.RawBinding, len(c.Bindings))
	for method, b := range c.Bindings {
		raw[method] = paymentapp.RawBinding{OtpRequired: b.OtpRequired, Channel: b.Channel}
	}
	bindings, err := paymentapp.ParseBindings(raw)
	if err != nil {
		return paymentapp.Config{}, err
	}
	plan, err := payment.NewNumberingPlan(c.NumberingPlan)
	if err != nil {
		return paymentapp.Config{}, fmt.Errorf("payment.numbering_plan: %w", err)
	}
	return paymentapp.Config{
		Bindings:          bindings,
		NumberingPlan:     plan,
		TransactionsLimit: c.TransactionsLimit,
		IdempotencyTTL:    c.IdempotencyTTL,
	}, nil
}

// newNotifier routes email and SMS to their transports. A channel without
// a configured transport only logs, revealing the code in development.
func newNotifier(cfg *config.Config, log *zap.Logger) *notification.Gateway {
	n := cfg.Notification
	reveal := cfg.App.IsDevelopment()

	opts := []notification.GatewayOption{notification.WithTimeout(n.Timeout)}
	if n.SMTP.Host != "" {
		opts = append(opts, notification.WithSender(otp.ChannelEmail, notification.NewSMTPSender(notification.SMTPConfig{
			Host:     n.SMTP.Host,
			Port:     n.SMTP.Port,
			Username: n.SMTP.Username,
			Password: n.SMTP.Password,
			From:     n.SMTP.From,
		})))
	} else {
		opts = append(opts, notification.WithSender(otp.ChannelEmail, notification.NewLogSender("email", reveal, log)))
	}
	if sms := notification.NewHTTPSMSSender(notification.SMSConfig{
		Endpoint:    n.SMS.Endpoint,
		Username:    n.SMS.Username,
		Password:    n.SMS.Password,
		Sender:      n.SMS.Sender,
		CountryCode: n.SMS.CountryCode,
	}, &http.Client{Timeout: n.Timeout}); sms != nil {
		opts = append(opts, notification.WithSender(otp.ChannelSMS, sms))
	} else {
		opts = append(opts, notification.WithSender(otp.ChannelSMS, notification.NewLogSender("sms", reveal, log)))
	}
	return notification.NewGateway(notification.NewLogSender("fallback", reveal, log), log, opts...)
}

// newEngine builds the gin engine with the global middleware chain. The
// returned limiters must be closed on shutdown.
func newEngine(cfg *config.Config, app *application, providers *telemetry.Providers, log *zap.Logger) (*gin.Engine, []*middleware.RateLimiter) {
	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log, logger.WithQuietPaths("/health")))
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     providers.TracesEnabled(),
		SkipPaths:   []string{"/health"},
	}))
	engine.Use(middleware.TracingAttributeInjector(), middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(httpMeter(providers), log))
	if cfg.Telemetry.ProfilingEnabled {
		engine.Use(middleware.Profiling(middleware.DefaultProfilingConfig()))
	}
	engine.Use(middleware.SecureWithConfig(middleware.DefaultSecurityConfig()))

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(cors))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	var limiters []*middleware.RateLimiter
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		limiters = append(limiters, limiter)
		engine.Use(middleware.RateLimit(limiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}
	if cfg.HTTP.AuthRateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.AuthRateLimitRequests, cfg.HTTP.AuthRateLimitWindow)
		limiters = append(limiters, limiter)
		app.guards.PublicAuth = middleware.RateLimitByKey(limiter, func(c *gin.Context) string {
			return "auth:" + strings.ToLower(c.ClientIP())
		})
	}
	return engine, limiters
}

// httpMeter returns nil when metrics are off so the middleware passes
// requests straight through.
func httpMeter(providers *telemetry.Providers) metric.Meter {
	if !providers.MetricsEnabled() {
		return nil
	}
	return providers.Meter("http")
}
