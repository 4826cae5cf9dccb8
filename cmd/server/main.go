package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/adapter/cache"
	"github.com/Namalekanayaka/evcharging-rental/internal/adapter/grpc/server"
	"github.com/Namalekanayaka/evcharging-rental/internal/adapter/http/fiber/handlers"
	"github.com/Namalekanayaka/evcharging-rental/internal/adapter/http/fiber/middleware"
	"github.com/Namalekanayaka/evcharging-rental/internal/adapter/queue"
	"github.com/Namalekanayaka/evcharging-rental/internal/adapter/storage/memory"
	"github.com/Namalekanayaka/evcharging-rental/internal/adapter/storage/postgres"
	"github.com/Namalekanayaka/evcharging-rental/internal/adapter/vault"
	"github.com/Namalekanayaka/evcharging-rental/internal/observability/logging"
	"github.com/Namalekanayaka/evcharging-rental/internal/observability/telemetry"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/auth"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/availability"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/billing"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/booking"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/charger"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/email"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/health"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/ledger"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/notify"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/pricing"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/ratelimit"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/session"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/sweep"
	"github.com/Namalekanayaka/evcharging-rental/pkg/config"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	// 2. Initialize Logger
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Overlay secrets from Vault
	if cfg.Vault.Address != "" {
		sm, err := vault.NewSecretManager(cfg.Vault.Address, cfg.Vault.Token, logger)
		if err != nil {
			logger.Fatal("Failed to create Vault client", zap.Error(err))
		}
		if err := sm.Overlay(ctx, cfg); err != nil {
			logger.Fatal("Failed to read secrets from Vault", zap.Error(err))
		}
	}

	logger.Info("Starting EV rental service",
		zap.String("service", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	// 4. Initialize OpenTelemetry (Distributed Tracing)
	shutdownTracer, err := telemetry.InitTracer(cfg.OpenTelemetry, cfg.App.Version)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	healthSvc := health.NewService(cfg.App.Version, logger)

	// 5. Storage
	var store ports.UnitOfWork
	var directory ports.RecipientDirectory
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgres.NewConnection(cfg.Database.URL, postgres.Options{
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			SlowThreshold:   cfg.Database.SlowThreshold,
			LogQueries:      cfg.Database.LogQueries,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer postgres.Close(db)

		if cfg.Database.AutoMigrate {
			if err := postgres.RunMigrations(db); err != nil {
				logger.Fatal("Failed to run migrations", zap.Error(err))
			}
		}
		pg := postgres.NewStore(db, logger)
		healthSvc.Register("database", pg.Ping)
		store = pg
		directory = postgres.NewUserRepository(db, logger)
	default:
		logger.Warn("Using in-memory storage; state is lost on restart")
		store = memory.NewStore()
	}

	// 6. Cache and rate limit counters
	var priceCache ports.Cache
	var limitStore ratelimit.Store
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("Invalid Redis URL", zap.Error(err))
		}
		client := redis.NewClient(opts)
		redisCache := cache.NewRedisCacheFromClient(client, logger)
		if err := redisCache.Ping(); err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		priceCache = redisCache
		limitStore = ratelimit.NewRedisStore(client, cfg.App.Name+":ratelimit:")
	} else {
		priceCache = cache.NewLocalCache(time.Minute, logger)
		limitStore = ratelimit.NewMemoryStore()
	}
	defer priceCache.Close()
	healthSvc.Register("cache", health.Plain(priceCache.Ping))

	// 7. Message queue and notifications
	mq, err := queue.New(cfg.Queue.Driver, cfg.Queue.URL(), logger)
	if err != nil {
		logger.Fatal("Failed to connect to message queue", zap.Error(err))
	}
	defer mq.Close()
	healthSvc.Register("queue", health.Plain(mq.Ping))
	notifier := notify.NewPublisher(mq, logger)

	if cfg.Notification.Enabled {
		startEmailWorker(cfg.Notification.Email, directory, mq, logger)
	}

	// 8. Initialize Services (Business Logic Layer)
	loc, err := time.LoadLocation(cfg.Billing.Timezone)
	if err != nil {
		logger.Fatal("Invalid billing timezone", zap.Error(err))
	}

	prices := pricing.NewProvider(store.Chargers(), priceCache, cfg.Redis.PriceTTL, logger)
	ledgerSvc := ledger.NewService(store, cfg.Billing.Currency, logger)
	bookingSvc := booking.NewService(store, ledgerSvc, prices, notifier, &booking.Config{
		FullRefundNotice: cfg.Booking.FullRefundNotice,
		HalfRefundNotice: cfg.Booking.HalfRefundNotice,
		EmergencyWindow:  cfg.Booking.EmergencyWindow,
		MinDuration:      cfg.Booking.MinDuration,
		MaxDuration:      cfg.Booking.MaxDuration,
		MaxAdvance:       cfg.Booking.MaxAdvance,
	}, logger)
	sessionSvc := session.NewService(store, bookingSvc, ledgerSvc, notifier, &session.Config{
		WalkUpHold: cfg.Session.WalkUpHold,
		EarlyStart: cfg.Session.EarlyStart,
		Peak: billing.PeakWindow{
			StartHour: cfg.Billing.PeakStartHour,
			EndHour:   cfg.Billing.PeakEndHour,
			Location:  loc,
		},
	}, logger)
	availabilitySvc := availability.NewChecker(store, availability.SlotConfig{
		OpenHour:   cfg.Booking.SlotOpenHour,
		CloseHour:  cfg.Booking.SlotCloseHour,
		SlotLength: cfg.Booking.SlotLength,
	}, logger)
	chargerSvc := charger.NewService(store, prices, logger)
	tokens := auth.NewJWTService(cfg.JWT, priceCache, logger)
	limiter := ratelimit.NewLimiter(limitStore, logger)

	// 9. Start Background Workers
	if cfg.Sweep.Enabled {
		sweeper := sweep.NewSweeper(bookingSvc, &sweep.Config{
			Interval:        cfg.Sweep.Interval,
			PendingGrace:    cfg.Sweep.PendingGrace,
			CleanupInterval: cfg.Sweep.CleanupInterval,
		}, logger, limiter)
		go sweeper.Start(ctx)
	}

	// 10. Initialize Fiber HTTP Server
	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		ServerHeader:          cfg.App.Name,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		IdleTimeout:           cfg.HTTP.IdleTimeout,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	// Global Middleware
	app.Use(recover.New())
	app.Use(middleware.RequestLogger(logger))
	if cfg.HTTP.ThrottleRPS > 0 {
		app.Use(middleware.Throttle(cfg.HTTP.ThrottleRPS, cfg.HTTP.ThrottleBurst))
	}
	if cfg.CORS.Enabled {
		app.Use(middleware.NewCORS(cfg.CORS))
	}
	if cfg.CircuitBreaker.Enabled {
		app.Use(middleware.CircuitBreaker(cfg.CircuitBreaker, logger))
	}

	health.NewFiberHandler(healthSvc).RegisterRoutes(app)

	// Metrics endpoint for Prometheus
	if cfg.Prometheus.Enabled {
		metrics := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		app.Get(cfg.Prometheus.Path, func(c *fiber.Ctx) error {
			metrics(c.Context())
			return nil
		})
	}

	api := &handlers.API{
		Chargers: handlers.NewChargerHandler(chargerSvc, availabilitySvc, bookingSvc, sessionSvc, loc, logger),
		Bookings: handlers.NewBookingHandler(bookingSvc, logger),
		Sessions: handlers.NewSessionHandler(sessionSvc, logger),
		Wallet:   handlers.NewWalletHandler(ledgerSvc, logger),
		Auth:     middleware.AuthRequired(tokens),
	}
	if cfg.RateLimiting.Enabled {
		rules := rateLimitRules(cfg.RateLimiting.Rules)
		api.GeneralLimit = middleware.RateLimit(limiter, rules[ratelimit.General.Name], logger)
		api.BookingLimit = middleware.RateLimit(limiter, rules[ratelimit.BookingCreate.Name], logger)
		api.TransferLimit = middleware.RateLimit(limiter, rules[ratelimit.WalletTransfer.Name], logger)
	}
	api.Register(app)

	// 11. Initialize gRPC Server (health and reflection for internal callers)
	grpcServer := server.NewGRPCServer(func(ctx context.Context) bool {
		return healthSvc.Ready(ctx).Ready
	}, logger)
	go grpcServer.WatchReadiness(ctx, 15*time.Second)
	go func() {
		logger.Info("Starting gRPC Server", zap.Int("port", cfg.GRPC.Port))
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
		if err != nil {
			logger.Fatal("Failed to listen for gRPC", zap.Error(err))
		}
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC Server stopped", zap.Error(err))
		}
	}()

	// 12. Start HTTP Server
	go func() {
		logger.Info("Starting HTTP Server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP Server failed", zap.Error(err))
		}
	}()

	// 13. Graceful Shutdown
	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	grpcServer.Stop()

	logger.Info("Server exited gracefully")
}

// startEmailWorker subscribes the email notifier to the event stream.
// Notices need a user directory, which only the postgres driver has.
func startEmailWorker(cfg config.EmailConfig, directory ports.RecipientDirectory, sub notify.Subscriber, logger *zap.Logger) {
	if directory == nil {
		logger.Warn("Email notifications need the postgres driver; skipping")
		return
	}
	sender, err := email.NewService(&email.Config{
		Provider:         cfg.Provider,
		FromEmail:        cfg.From,
		FromName:         cfg.FromName,
		SendGridAPIKey:   cfg.APIKey,
		SMTPHost:         cfg.SMTPHost,
		SMTPPort:         cfg.SMTPPort,
		SMTPUsername:     cfg.SMTPUsername,
		SMTPPassword:     cfg.SMTPPassword,
		SMTPUseTLS:       cfg.SMTPUseTLS,
		FailureThreshold: cfg.FailureThreshold,
		OpenTimeout:      cfg.OpenTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create email service", zap.Error(err))
	}
	if err := notify.NewEmailWorker(directory, sender, logger).Subscribe(sub); err != nil {
		logger.Fatal("Failed to subscribe email worker", zap.Error(err))
	}
	logger.Info("Email notifications enabled", zap.String("provider", cfg.Provider))
}

// rateLimitRules returns the default rules with configured ones replacing them by name
func rateLimitRules(configured []config.RuleConfig) map[string]ratelimit.Rule {
	rules := map[string]ratelimit.Rule{
		ratelimit.General.Name:        ratelimit.General,
		ratelimit.BookingCreate.Name:  ratelimit.BookingCreate,
		ratelimit.WalletTransfer.Name: ratelimit.WalletTransfer,
	}
	for _, r := range configured {
		rules[r.Name] = ratelimit.Rule{Name: r.Name, Limit: r.Limit, Window: r.Window}
	}
	return rules
}
