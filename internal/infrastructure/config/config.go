package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Log          LogConfig
	HTTP         HTTPConfig
	OTP          OTPConfig
	Payment      PaymentConfig
	Notification NotificationConfig
	Cleanup      CleanupConfig
	Telemetry    TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// IsDevelopment reports whether the app runs in the development environment
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development"
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
	AutoMigrate     bool
	MigrationsPath  string
}

// RedisConfig holds Redis connection settings. When Enabled is false the
// idempotency store runs in memory.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds JWT settings
type JWTConfig struct {
	Secret                string
	ResetSecret           string // falls back to Secret
	AccessTokenExpiration time.Duration
	ResetTokenExpiration  time.Duration
	Issuer                string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout           time.Duration
	WriteTimeout          time.Duration
	IdleTimeout           time.Duration
	ShutdownTimeout       time.Duration
	MaxHeaderBytes        int
	MaxBodySize           int64
	RateLimitEnabled      bool
	RateLimitRequests     int
	RateLimitWindow       time.Duration
	AuthRateLimitEnabled  bool          // Stricter limit for /auth endpoints
	AuthRateLimitRequests int           // Max auth attempts (default: 5)
	AuthRateLimitWindow   time.Duration // Auth rate limit window (default: 1 minute)
	CORSAllowOrigins      []string
	CORSAllowMethods      []string
	CORSAllowHeaders      []string
	TrustedProxies        []string
}

// OTPConfig holds one-time code settings per purpose
type OTPConfig struct {
	BcryptCost        int
	PaymentTTL        time.Duration
	PaymentCooldown   time.Duration
	PaymentWindow     time.Duration
	PaymentMaxSends   int
	ResetTTL          time.Duration
	ResetCooldown     time.Duration
	ResetWindow       time.Duration
	ResetMaxSends     int
	VerifiedGrace     time.Duration // how long a verified code authorizes a direct payment
	VerifiedRetention time.Duration // how long the sweeper keeps verified codes
}

// PaymentBindingConfig binds a payment method to its code delivery channel
type PaymentBindingConfig struct {
	OtpRequired bool   `mapstructure:"otp_required"`
	Channel     string `mapstructure:"channel"`
}

// PaymentConfig holds payment workflow settings
type PaymentConfig struct {
	Bindings          map[string]PaymentBindingConfig
	NumberingPlan     string // regex for local mobile money numbers
	TransactionsLimit int
	IdempotencyTTL    time.Duration
}

// SMTPConfig holds outgoing mail settings. An empty Host disables email.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMSConfig holds the HTTP SMS provider settings. An empty Endpoint
// disables SMS.
type SMSConfig struct {
	Endpoint    string
	Username    string
	Password    string
	Sender      string
	CountryCode string // prefix used for E.164 normalization, e.g. "20"
}

// NotificationConfig holds code delivery settings
type NotificationConfig struct {
	SMTP    SMTPConfig
	SMS     SMSConfig
	Timeout time.Duration
}

// CleanupConfig holds the expired challenge sweeper settings
type CleanupConfig struct {
	Enabled      bool
	InitialDelay time.Duration
	Interval     time.Duration
	Timeout      time.Duration
}

// TelemetryConfig holds OpenTelemetry and profiling configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable tracing
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string
	Insecure          bool // Use insecure (non-TLS) connection (development only)

	MetricsEnabled        bool
	MetricsExportInterval time.Duration
	LogsEnabled           bool

	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)

	ProfilingEnabled      bool
	ProfilingServer       string // Pyroscope server address
	ProfilingAuthUser     string
	ProfilingAuthPassword string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with TDS_ prefix (e.g., TDS_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("TDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var bindings map[string]PaymentBindingConfig
	if err := v.UnmarshalKey("payment.bindings", &bindings); err != nil {
		return nil, fmt.Errorf("error reading payment.bindings: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
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
			AutoMigrate:     v.GetBool("database.auto_migrate"),
			MigrationsPath:  v.GetString("database.migrations_path"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			ResetSecret:           v.GetString("jwt.reset_secret"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
			ResetTokenExpiration:  v.GetDuration("jwt.reset_token_expiration"),
			Issuer:                v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:           v.GetDuration("http.read_timeout"),
			WriteTimeout:          v.GetDuration("http.write_timeout"),
			IdleTimeout:           v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:       v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:        v.GetInt("http.max_header_bytes"),
			MaxBodySize:           v.GetInt64("http.max_body_size"),
			RateLimitEnabled:      v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests:     v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:       v.GetDuration("http.rate_limit_window"),
			AuthRateLimitEnabled:  v.GetBool("http.auth_rate_limit_enabled"),
			AuthRateLimitRequests: v.GetInt("http.auth_rate_limit_requests"),
			AuthRateLimitWindow:   v.GetDuration("http.auth_rate_limit_window"),
			CORSAllowOrigins:      v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:      v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:      v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:        v.GetStringSlice("http.trusted_proxies"),
		},
		OTP: OTPConfig{
			BcryptCost:        v.GetInt("otp.bcrypt_cost"),
			PaymentTTL:        v.GetDuration("otp.payment_ttl"),
			PaymentCooldown:   v.GetDuration("otp.payment_cooldown"),
			PaymentWindow:     v.GetDuration("otp.payment_window"),
			PaymentMaxSends:   v.GetInt("otp.payment_max_sends"),
			ResetTTL:          v.GetDuration("otp.reset_ttl"),
			ResetCooldown:     v.GetDuration("otp.reset_cooldown"),
			ResetWindow:       v.GetDuration("otp.reset_window"),
			ResetMaxSends:     v.GetInt("otp.reset_max_sends"),
			VerifiedGrace:     v.GetDuration("otp.verified_grace"),
			VerifiedRetention: v.GetDuration("otp.verified_retention"),
		},
		Payment: PaymentConfig{
			Bindings:          bindings,
			NumberingPlan:     v.GetString("payment.numbering_plan"),
			TransactionsLimit: v.GetInt("payment.transactions_limit"),
			IdempotencyTTL:    v.GetDuration("payment.idempotency_ttl"),
		},
		Notification: NotificationConfig{
			SMTP: SMTPConfig{
				Host:     v.GetString("notification.smtp.host"),
				Port:     v.GetInt("notification.smtp.port"),
				Username: v.GetString("notification.smtp.username"),
				Password: v.GetString("notification.smtp.password"),
				From:     v.GetString("notification.smtp.from"),
			},
			SMS: SMSConfig{
				Endpoint:    v.GetString("notification.sms.endpoint"),
				Username:    v.GetString("notification.sms.username"),
				Password:    v.GetString("notification.sms.password"),
				Sender:      v.GetString("notification.sms.sender"),
				CountryCode: v.GetString("notification.sms.country_code"),
			},
			Timeout: v.GetDuration("notification.timeout"),
		},
		Cleanup: CleanupConfig{
			Enabled:      v.GetBool("cleanup.enabled"),
			InitialDelay: v.GetDuration("cleanup.initial_delay"),
			Interval:     v.GetDuration("cleanup.interval"),
			Timeout:      v.GetDuration("cleanup.timeout"),
		},
		Telemetry: TelemetryConfig{
			Enabled:               v.GetBool("telemetry.enabled"),
			CollectorEndpoint:     v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:         v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:           v.GetString("telemetry.service_name"),
			Insecure:              v.GetBool("telemetry.insecure"),
			MetricsEnabled:        v.GetBool("telemetry.metrics_enabled"),
			MetricsExportInterval: v.GetDuration("telemetry.metrics_export_interval"),
			LogsEnabled:           v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:        v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:          v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh:     v.GetDuration("telemetry.db_slow_query_threshold"),
			ProfilingEnabled:      v.GetBool("telemetry.profiling_enabled"),
			ProfilingServer:       v.GetString("telemetry.profiling_server"),
			ProfilingAuthUser:     v.GetString("telemetry.profiling_auth_user"),
			ProfilingAuthPassword: v.GetString("telemetry.profiling_auth_password"),
		},
	}

	// cleanup is on unless explicitly switched off
	if !v.IsSet("cleanup.enabled") {
		cfg.Cleanup.Enabled = true
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
		cfg.App.Name = "techdigits-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
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
		cfg.Database.DBName = "techdigits"
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
	if cfg.Database.MigrationsPath == "" {
		cfg.Database.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = time.Hour
	}
	if cfg.JWT.ResetTokenExpiration == 0 {
		cfg.JWT.ResetTokenExpiration = 15 * time.Minute
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "techdigits-backend"
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
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.HTTP.AuthRateLimitRequests == 0 {
		cfg.HTTP.AuthRateLimitRequests = 5
	}
	if cfg.HTTP.AuthRateLimitWindow == 0 {
		cfg.HTTP.AuthRateLimitWindow = time.Minute
	}
	// No default CORS origins: cross-origin requests stay blocked until
	// configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "Idempotency-Key"}
	}

	if cfg.OTP.BcryptCost == 0 {
		cfg.OTP.BcryptCost = 10
	}
	if cfg.OTP.PaymentTTL == 0 {
		cfg.OTP.PaymentTTL = 5 * time.Minute
	}
	if cfg.OTP.PaymentCooldown == 0 {
		cfg.OTP.PaymentCooldown = 45 * time.Second
	}
	if cfg.OTP.PaymentWindow == 0 {
		cfg.OTP.PaymentWindow = 10 * time.Minute
	}
	if cfg.OTP.PaymentMaxSends == 0 {
		cfg.OTP.PaymentMaxSends = 3
	}
	if cfg.OTP.ResetTTL == 0 {
		cfg.OTP.ResetTTL = 10 * time.Minute
	}
	if cfg.OTP.ResetCooldown == 0 {
		cfg.OTP.ResetCooldown = 45 * time.Second
	}
	if cfg.OTP.ResetWindow == 0 {
		cfg.OTP.ResetWindow = 10 * time.Minute
	}
	if cfg.OTP.ResetMaxSends == 0 {
		cfg.OTP.ResetMaxSends = 3
	}
	if cfg.OTP.VerifiedGrace == 0 {
		cfg.OTP.VerifiedGrace = 5 * time.Minute
	}
	if cfg.OTP.VerifiedRetention == 0 {
		cfg.OTP.VerifiedRetention = cfg.JWT.ResetTokenExpiration
	}

	if cfg.Payment.NumberingPlan == "" {
		cfg.Payment.NumberingPlan = `^01[0-9]{9}$`
	}
	if cfg.Payment.TransactionsLimit == 0 {
		cfg.Payment.TransactionsLimit = 200
	}
	if cfg.Payment.IdempotencyTTL == 0 {
		cfg.Payment.IdempotencyTTL = 24 * time.Hour
	}

	if cfg.Notification.SMTP.Port == 0 {
		cfg.Notification.SMTP.Port = 587
	}
	if cfg.Notification.SMS.CountryCode == "" {
		cfg.Notification.SMS.CountryCode = "20"
	}
	if cfg.Notification.Timeout == 0 {
		cfg.Notification.Timeout = 10 * time.Second
	}

	if cfg.Cleanup.InitialDelay == 0 {
		cfg.Cleanup.InitialDelay = 60 * time.Second
	}
	if cfg.Cleanup.Interval == 0 {
		cfg.Cleanup.Interval = 10 * time.Minute
	}
	if cfg.Cleanup.Timeout == 0 {
		cfg.Cleanup.Timeout = time.Minute
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsExportInterval == 0 {
		cfg.Telemetry.MetricsExportInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.ProfilingServer == "" {
		cfg.Telemetry.ProfilingServer = "http://localhost:4040"
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

	if c.OTP.BcryptCost < 4 || c.OTP.BcryptCost > 31 {
		return fmt.Errorf("otp.bcrypt_cost must be between 4 and 31, got %d", c.OTP.BcryptCost)
	}
	if c.OTP.VerifiedRetention < c.OTP.VerifiedGrace {
		return fmt.Errorf("otp.verified_retention (%s) cannot be shorter than otp.verified_grace (%s)",
			c.OTP.VerifiedRetention, c.OTP.VerifiedGrace)
	}
	if _, err := regexp.Compile(c.Payment.NumberingPlan); err != nil {
		return fmt.Errorf("payment.numbering_plan is not a valid pattern: %w", err)
	}

	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.JWT.ResetSecret != "" && len(c.JWT.ResetSecret) < 32 {
			return fmt.Errorf("jwt.reset_secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.OTP.BcryptCost < 10 {
			return fmt.Errorf("otp.bcrypt_cost must be at least 10 in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
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

// Addr returns host:port of the Redis server
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
