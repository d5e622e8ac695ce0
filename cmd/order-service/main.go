package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/freshmarkt/orderflow/internal/cart"
	catalogsqlite "github.com/freshmarkt/orderflow/internal/catalog/sqlite"
	logsqlite "github.com/freshmarkt/orderflow/internal/coordinator/placementlog/sqlite"
	"github.com/freshmarkt/orderflow/internal/httpx"
	inventorysqlite "github.com/freshmarkt/orderflow/internal/inventory/sqlite"
	"github.com/freshmarkt/orderflow/internal/notification"
	"github.com/freshmarkt/orderflow/internal/order/app"
	ordersqlite "github.com/freshmarkt/orderflow/internal/order/sqlite"
	"github.com/freshmarkt/orderflow/internal/pkg/idempotency"
	"github.com/freshmarkt/orderflow/internal/pkg/sqlitedb"
	"github.com/freshmarkt/orderflow/internal/pkg/telemetry"
)

func main() {
	telemetry.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, getEnv("OTEL_SERVICE_NAME", "order-service"))
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	db, err := sqlitedb.Open(getEnv("SQLITE_PATH", "orderflow.db"))
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ledger, err := inventorysqlite.NewLedger(db)
	if err != nil {
		slog.Error("failed to initialise stock ledger", "error", err)
		os.Exit(1)
	}
	orders, err := ordersqlite.NewRepository(db)
	if err != nil {
		slog.Error("failed to initialise order store", "error", err)
		os.Exit(1)
	}
	placements, err := logsqlite.NewRepository(db)
	if err != nil {
		slog.Error("failed to initialise placement log", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: getEnv("REDIS_ADDR", "redis-cache:6379")})
	defer rdb.Close()

	svc := app.NewService(
		orders,
		ledger,
		catalogsqlite.NewLookup(db),
		cart.NewRedisStore(rdb),
		notification.NewLogNotifier(),
		placements,
		app.WithTaxRate(getEnvFloat("TAX_RATE", app.DefaultTaxRate)),
	)

	idem := idempotency.NewStore(rdb, 24*time.Hour)
	router := httpx.NewRouter(httpx.NewHandler(svc, placements), idem)

	addr := ":" + getEnv("PORT", "8080")
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		slog.Info("order service running", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("ignoring invalid env value", "key", key, "value", raw)
		return fallback
	}
	return v
}
