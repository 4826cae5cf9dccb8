package config

import "time"

type Config struct {
	App            AppConfig            `mapstructure:"app"`
	HTTP           HTTPConfig           `mapstructure:"http"`
	GRPC           GRPCConfig           `mapstructure:"grpc"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Queue          QueueConfig          `mapstructure:"queue"`
	JWT            JWTConfig            `mapstructure:"jwt"`
	OpenTelemetry  OpenTelemetryConfig  `mapstructure:"opentelemetry"`
	Prometheus     PrometheusConfig     `mapstructure:"prometheus"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Booking        BookingConfig        `mapstructure:"booking"`
	Session        SessionConfig        `mapstructure:"session"`
	Billing        BillingConfig        `mapstructure:"billing"`
	Sweep          SweepConfig          `mapstructure:"sweep"`
	RateLimiting   RateLimitingConfig   `mapstructure:"rate_limiting"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	CORS           CORSConfig           `mapstructure:"cors"`
	Notification   NotificationConfig   `mapstructure:"notification"`
	Vault          VaultConfig          `mapstructure:"vault"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	// Throttle is a process-wide token bucket in front of every route
	ThrottleRPS   float64 `mapstructure:"throttle_rps"`
	ThrottleBurst int     `mapstructure:"throttle_burst"`
}

type GRPCConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory"
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogQueries      bool          `mapstructure:"log_queries"`
}

type RedisConfig struct {
	// URL empty means in-process cache and rate limit counters
	URL      string        `mapstructure:"url"`
	PriceTTL time.Duration `mapstructure:"price_ttl"`
}

type QueueConfig struct {
	// Driver is "nats", "rabbitmq" or "local"
	Driver      string `mapstructure:"driver"`
	NATSURL     string `mapstructure:"nats_url"`
	RabbitMQURL string `mapstructure:"rabbitmq_url"`
}

// URL returns the broker address for the configured driver
func (q QueueConfig) URL() string {
	if q.Driver == "rabbitmq" {
		return q.RabbitMQURL
	}
	return q.NATSURL
}

type JWTConfig struct {
	Secret   string `mapstructure:"secret"`
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
}

type OpenTelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	Endpoint     string  `mapstructure:"endpoint"`
	SamplerRatio float64 `mapstructure:"sampler_ratio"`
}

type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level    string          `mapstructure:"level"`
	Format   string          `mapstructure:"format"`
	File     LoggingFile     `mapstructure:"file"`
	Sampling LoggingSampling `mapstructure:"sampling"`
}

type LoggingFile struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type LoggingSampling struct {
	Enabled    bool `mapstructure:"enabled"`
	Initial    int  `mapstructure:"initial"`
	Thereafter int  `mapstructure:"thereafter"`
}

type BookingConfig struct {
	FullRefundNotice time.Duration `mapstructure:"full_refund_notice"`
	HalfRefundNotice time.Duration `mapstructure:"half_refund_notice"`
	EmergencyWindow  time.Duration `mapstructure:"emergency_window"`
	MinDuration      time.Duration `mapstructure:"min_duration"`
	MaxDuration      time.Duration `mapstructure:"max_duration"`
	MaxAdvance       time.Duration `mapstructure:"max_advance"`
	SlotOpenHour     int           `mapstructure:"slot_open_hour"`
	SlotCloseHour    int           `mapstructure:"slot_close_hour"`
	SlotLength       time.Duration `mapstructure:"slot_length"`
}

type SessionConfig struct {
	WalkUpHold time.Duration `mapstructure:"walk_up_hold"`
	EarlyStart time.Duration `mapstructure:"early_start"`
}

type BillingConfig struct {
	Currency      string `mapstructure:"currency"`
	Timezone      string `mapstructure:"timezone"`
	PeakStartHour int    `mapstructure:"peak_start_hour"`
	PeakEndHour   int    `mapstructure:"peak_end_hour"`
}

type SweepConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval"`
	PendingGrace    time.Duration `mapstructure:"pending_grace"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type RateLimitingConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	Rules   []RuleConfig `mapstructure:"rules"`
}

type RuleConfig struct {
	Name   string        `mapstructure:"name"`
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold float64       `mapstructure:"failure_threshold"`
}

type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	ExposeHeaders  []string `mapstructure:"expose_headers"`
	MaxAge         int      `mapstructure:"max_age"`
	Credentials    bool     `mapstructure:"credentials"`
}

type NotificationConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	Email   EmailConfig `mapstructure:"email"`
}

type EmailConfig struct {
	Provider         string        `mapstructure:"provider"`
	APIKey           string        `mapstructure:"api_key"`
	From             string        `mapstructure:"from"`
	FromName         string        `mapstructure:"from_name"`
	SMTPHost         string        `mapstructure:"smtp_host"`
	SMTPPort         int           `mapstructure:"smtp_port"`
	SMTPUsername     string        `mapstructure:"smtp_username"`
	SMTPPassword     string        `mapstructure:"smtp_password"`
	SMTPUseTLS       bool          `mapstructure:"smtp_use_tls"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

type VaultConfig struct {
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
	// Path is the KV v2 secret holding overrides, e.g. "secret/data/evrental"
	Path string `mapstructure:"path"`
}
