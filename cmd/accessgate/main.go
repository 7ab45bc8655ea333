package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/poyrazK/accessgate/internal/adapters/api"
	"github.com/poyrazK/accessgate/internal/adapters/notify"
	"github.com/poyrazK/accessgate/internal/adapters/repository"
	"github.com/poyrazK/accessgate/internal/config"
	"github.com/poyrazK/accessgate/internal/core/ports"
	"github.com/poyrazK/accessgate/internal/core/services"
)

func main() {
	cfg, err := config.Load(os.Getenv("ACCESSGATE_CONFIG"))
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, nil); err != nil {
		logger.Error("accessgate exited", "error", err)
		os.Exit(1)
	}
}

// run wires the store, notifier, service, expiry monitor and HTTP API, and
// serves until ctx is cancelled. If ready is non-nil it receives the bound
// listen address once the server accepts connections.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger, ready chan<- string) error {
	var repo ports.AccessRepository
	switch cfg.Store {
	case config.StorePostgres:
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("unable to open database: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Warn("failed to close database", "error", err)
			}
		}()

		pg := repository.NewPostgresRepository(db)
		if err := pg.Ping(ctx); err != nil {
			logger.Warn("could not ping database", "error", err)
		} else if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
		repo = pg
	default:
		logger.Warn("using in-memory access store; records are lost on restart")
		repo = repository.NewMemoryRepository()
	}

	var notifier ports.ChangeNotifier
	switch cfg.Notifier {
	case config.NotifierRedis:
		rn := notify.NewRedisNotifier(cfg.RedisAddr, "", 0)
		defer func() {
			if err := rn.Close(); err != nil {
				logger.Warn("failed to close redis", "error", err)
			}
		}()
		notifier = rn
	default:
		notifier = notify.NewLocalNotifier()
	}

	svc := services.NewAccessService(repo, notifier, services.ServiceConfig{
		UnitPrice:    cfg.UnitPriceCents,
		PaidDuration: cfg.PaidDuration(),
	}, logger)

	monitor := services.NewExpiryMonitor(repo, notifier, cfg.ExpiryCheckInterval, cfg.UnitPriceCents, nil, logger)
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go monitor.Start(monitorCtx)

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET is empty; every authenticated request will be rejected")
	}
	mux := http.NewServeMux()
	api.NewAPIHandler(svc, cfg.JWTSecret, logger).RegisterRoutes(mux)

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.HTTPAddr, err)
	}
	srv := &http.Server{
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("management API listening", "addr", ln.Addr().String(), "store", cfg.Store, "notifier", cfg.Notifier)
		errCh <- srv.Serve(ln)
	}()
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
