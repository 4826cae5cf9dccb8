package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load reads configs/config.yaml (or the first config.yaml found in
// searchPaths), then applies APP_* environment overrides.
func Load(searchPaths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(searchPaths) == 0 {
		searchPaths = []string{"./configs", ".", "/app/configs"}
	}
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow common env vars without APP_ prefix for Docker/VM deploys
	v.BindEnv("http.port", "HTTP_PORT", "APP_HTTP_PORT")
	v.BindEnv("database.url", "DATABASE_URL", "APP_DATABASE_URL")
	v.BindEnv("redis.url", "REDIS_URL", "APP_REDIS_URL")
	v.BindEnv("queue.nats_url", "NATS_URL", "APP_QUEUE_NATS_URL")
	v.BindEnv("queue.rabbitmq_url", "RABBITMQ_URL", "APP_QUEUE_RABBITMQ_URL")
	v.BindEnv("jwt.secret", "JWT_SECRET", "APP_JWT_SECRET")
	v.BindEnv("notification.email.api_key", "SENDGRID_API_KEY", "APP_NOTIFICATION_EMAIL_API_KEY")
	v.BindEnv("vault.address", "VAULT_ADDR", "APP_VAULT_ADDRESS")
	v.BindEnv("vault.token", "VAULT_TOKEN", "APP_VAULT_TOKEN")
	v.BindEnv("app.environment", "APP_ENVIRONMENT")
	v.BindEnv("logging.level", "LOG_LEVEL", "APP_LOGGING_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "evrental")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.environment", "development")

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.throttle_rps", 200)
	v.SetDefault("http.throttle_burst", 400)
	v.SetDefault("grpc.port", 9090)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.slow_threshold", 200*time.Millisecond)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.price_ttl", 5*time.Minute)
	v.SetDefault("queue.driver", "nats")
	v.SetDefault("queue.nats_url", "nats://localhost:4222")

	v.SetDefault("jwt.issuer", "evrental-auth")

	v.SetDefault("opentelemetry.service_name", "evrental")
	v.SetDefault("opentelemetry.endpoint", "http://jaeger:14268/api/traces")
	v.SetDefault("opentelemetry.sampler_ratio", 1.0)
	v.SetDefault("prometheus.enabled", true)
	v.SetDefault("prometheus.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 30)

	v.SetDefault("booking.full_refund_notice", 2*time.Hour)
	v.SetDefault("booking.half_refund_notice", time.Hour)
	v.SetDefault("booking.emergency_window", 8*time.Hour)
	v.SetDefault("booking.min_duration", 15*time.Minute)
	v.SetDefault("booking.max_duration", 24*time.Hour)
	v.SetDefault("booking.max_advance", 30*24*time.Hour)
	v.SetDefault("booking.slot_open_hour", 6)
	v.SetDefault("booking.slot_close_hour", 22)
	v.SetDefault("booking.slot_length", 30*time.Minute)

	v.SetDefault("session.walk_up_hold", 2*time.Hour)
	v.SetDefault("session.early_start", 15*time.Minute)

	v.SetDefault("billing.currency", "USD")
	v.SetDefault("billing.timezone", "UTC")
	v.SetDefault("billing.peak_start_hour", 18)
	v.SetDefault("billing.peak_end_hour", 21)

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.interval", 2*time.Minute)
	v.SetDefault("sweep.pending_grace", 10*time.Minute)
	v.SetDefault("sweep.cleanup_interval", 30*time.Minute)

	v.SetDefault("rate_limiting.enabled", true)

	v.SetDefault("circuit_breaker.enabled", true)
	v.SetDefault("circuit_breaker.max_requests", 3)
	v.SetDefault("circuit_breaker.interval", time.Minute)
	v.SetDefault("circuit_breaker.timeout", 30*time.Second)
	v.SetDefault("circuit_breaker.failure_threshold", 0.6)

	v.SetDefault("cors.enabled", true)

	v.SetDefault("notification.email.provider", "smtp")
	v.SetDefault("notification.email.from", "noreply@evrental.local")
	v.SetDefault("notification.email.from_name", "EV Rental")
	v.SetDefault("notification.email.smtp_host", "localhost")
	v.SetDefault("notification.email.smtp_port", 1025)
	v.SetDefault("notification.email.failure_threshold", 5)
	v.SetDefault("notification.email.open_timeout", 30*time.Second)

	v.SetDefault("vault.path", "secret/data/evrental")
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	switch c.Queue.Driver {
	case "nats", "rabbitmq", "local":
	default:
		errs = append(errs, fmt.Errorf("unknown queue.driver %q", c.Queue.Driver))
	}
	if c.Booking.HalfRefundNotice > c.Booking.FullRefundNotice {
		errs = append(errs, errors.New("booking.half_refund_notice must not exceed full_refund_notice"))
	}
	if c.Booking.MinDuration <= 0 || c.Booking.MaxDuration < c.Booking.MinDuration {
		errs = append(errs, errors.New("booking.min_duration must be positive and at most max_duration"))
	}
	if c.Billing.PeakStartHour < 0 || c.Billing.PeakStartHour > 23 || c.Billing.PeakEndHour < 0 || c.Billing.PeakEndHour > 24 {
		errs = append(errs, errors.New("billing peak hours must be within 0..24"))
	}
	if _, err := time.LoadLocation(c.Billing.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("billing.timezone: %w", err))
	}
	for _, r := range c.RateLimiting.Rules {
		if r.Name == "" || r.Limit <= 0 || r.Window <= 0 {
			errs = append(errs, fmt.Errorf("rate_limiting rule %q needs a name, positive limit and window", r.Name))
		}
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the app runs in production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}
