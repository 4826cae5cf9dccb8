package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/auth"
	"github.com/Namalekanayaka/evcharging-rental/pkg/config"
)

var (
	serverURL  = flag.String("server", "http://localhost:8080", "Rental API base URL")
	jwtSecret  = flag.String("secret", os.Getenv("JWT_SECRET"), "HS256 secret shared with the API")
	jwtIssuer  = flag.String("issuer", "evrental-auth", "Token issuer")
	userID     = flag.String("user", "", "Driver user id (random when empty)")
	operatorID = flag.String("operator", "", "Operator user id used to register a charger (random when empty)")
	chargerID  = flag.String("charger", "", "Existing charger id; a 2-port charger is registered when empty")
	book       = flag.Bool("book", false, "Book the window before charging instead of walking up")
	topUp      = flag.String("topup", "50", "Wallet credit before charging")
	powerKW    = flag.Float64("power", 7.2, "Simulated charge power (kW)")
	batterySOC = flag.Int("soc", 20, "Starting battery state of charge (%)")
	capacity   = flag.Float64("battery", 60.0, "Battery capacity (kWh)")
	interval   = flag.Duration("interval", 5*time.Second, "Telemetry interval")
	duration   = flag.Duration("duration", 2*time.Minute, "Charge duration")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *jwtSecret == "" {
		logger.Fatal("A JWT secret is required (-secret or JWT_SECRET)")
	}
	tokens := auth.NewJWTService(config.JWTConfig{Secret: *jwtSecret, Issuer: *jwtIssuer}, nil, logger)

	sim, err := NewSimulator(&SimulatorConfig{
		ServerURL:          *serverURL,
		UserID:             *userID,
		OperatorID:         *operatorID,
		ChargerID:          *chargerID,
		Book:               *book,
		TopUp:              *topUp,
		PowerKW:            *powerKW,
		BatterySOC:         *batterySOC,
		BatteryCapacityKWh: *capacity,
		Interval:           *interval,
		Duration:           *duration,
	}, func(id string, role domain.UserRole) (string, error) {
		return tokens.IssueAccessToken(id, role, *duration+10*time.Minute)
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create simulator", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("EV charging simulator\n")
	fmt.Printf("  Server: %s\n", *serverURL)
	fmt.Printf("  Power:  %.1f kW for %s\n", *powerKW, *duration)
	fmt.Println("\nPress Ctrl+C to stop early")

	summary, err := sim.Run(ctx)
	if err != nil {
		logger.Fatal("Simulation failed", zap.Error(err))
	}

	fmt.Printf("\nSession %s %s\n", summary.ID, summary.Status)
	fmt.Printf("  Energy: %s kWh\n", summary.Energy)
	fmt.Printf("  Cost:   %s\n", summary.Cost)
	fmt.Printf("  Wallet: %s\n", summary.Balance)
}
