//go:build integration

// Package testsupport starts the Postgres and Redis dependencies for
// integration tests. Set DATABASE_URL and REDIS_URL to use running
// services instead of containers.
package testsupport

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Postgres starts a database and returns its DSN. The container is
// terminated when t finishes.
func Postgres(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("evrental_test"),
		postgres.WithUsername("evrental"),
		postgres.WithPassword("evrental_test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get postgres connection string: %v", err)
	}
	return dsn
}

// Redis starts a server and returns a connected client
func Redis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		container, err := tcredis.Run(ctx, "redis:7-alpine",
			testcontainers.WithWaitStrategy(
				wait.ForLog("Ready to accept connections").
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			t.Skipf("redis container unavailable: %v", err)
		}
		t.Cleanup(func() {
			if err := container.Terminate(context.Background()); err != nil {
				t.Logf("Failed to terminate redis container: %v", err)
			}
		})
		if url, err = container.ConnectionString(ctx); err != nil {
			t.Fatalf("Failed to get redis connection string: %v", err)
		}
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("Failed to parse Redis URL: %v", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// Truncate empties the rental tables through a plain database/sql handle
func Truncate(t *testing.T, dsn string) {
	t.Helper()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	for _, table := range []string{
		"wallet_transactions",
		"wallets",
		"charging_sessions",
		"bookings",
		"chargers",
		"users",
	} {
		if _, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			t.Logf("Failed to truncate %s: %v", table, err)
		}
	}
}
