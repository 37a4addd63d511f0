package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/techdigits/backend/internal/infrastructure/config"
	"github.com/techdigits/backend/internal/infrastructure/logger"
	"github.com/techdigits/backend/internal/infrastructure/migration"
	"github.com/techdigits/backend/internal/infrastructure/persistence"
	"github.com/techdigits/backend/internal/infrastructure/telemetry"
	"github.com/techdigits/backend/internal/interfaces/http/handler"
	"github.com/techdigits/backend/internal/interfaces/http/middleware"
	"github.com/techdigits/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// @title           Payment Authorization API
// @version         1.0
// @description     Orders paid with one-time codes delivered by email or SMS.
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.DefaultTimeFormat,
	}
	bootLog, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()
	providers, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Environment:       cfg.App.Env,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		TracesEnabled:     cfg.Telemetry.Enabled,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		MetricsEnabled:    cfg.Telemetry.MetricsEnabled,
		ExportInterval:    cfg.Telemetry.MetricsExportInterval,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	// Rebuild the logger so entries also reach the OTLP log exporter.
	log, err := logger.New(logCfg, providers.NewZapCore(logger.ParseLevel(cfg.Log.Level)))
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting payment service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.ProfilingEnabled,
		ServerAddress:     cfg.Telemetry.ProfilingServer,
		ApplicationName:   cfg.Telemetry.ServiceName,
		BasicAuthUser:     cfg.Telemetry.ProfilingAuthUser,
		BasicAuthPassword: cfg.Telemetry.ProfilingAuthPassword,
	}, log)
	if err != nil {
		log.Warn("Profiler not started", zap.Error(err))
	} else if profiler.IsEnabled() {
		providers.EnableSpanProfiles()
	}

	if cfg.Database.AutoMigrate {
		if err := migration.Run(migration.Config{
			DatabaseURL:    cfg.Database.DSN(),
			MigrationsPath: cfg.Database.MigrationsPath,
		}, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
		log.Info("Migrations applied", zap.String("path", cfg.Database.MigrationsPath))
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected successfully")

	if err := telemetry.InstrumentDB(db.DB, telemetry.DBConfig{
		TraceEnabled:    cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBName:          cfg.Database.DBName,
	}, providers.Meter("db"), log); err != nil {
		log.Warn("Database instrumentation disabled", zap.Error(err))
	}

	app, err := buildApp(cfg, db, providers, log)
	if err != nil {
		log.Fatal("Failed to wire services", zap.Error(err))
	}

	if err := app.sweeper.Start(ctx); err != nil {
		log.Fatal("Failed to start cleanup sweeper", zap.Error(err))
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine, limiters := newEngine(cfg, app, providers, log)
	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to get underlying sql.DB", zap.Error(err))
	}
	health := handler.NewHealthHandler(sqlDB, version)
	engine.GET("/health", health.Check)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(router.NewDomainGroup("system", "").GET("/health", health.Check))
	router.Mount(r, app.handlers, app.guards)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	for _, l := range limiters {
		l.Close()
	}
	if err := app.sweeper.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping cleanup sweeper", zap.Error(err))
	}
	app.close(log)
	if err := db.Close(); err != nil {
		log.Error("Error closing database", zap.Error(err))
	}
	if profiler != nil {
		if err := profiler.Stop(); err != nil {
			log.Warn("Error stopping profiler", zap.Error(err))
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down telemetry", zap.Error(err))
	}

	log.Info("Server exited")
}
