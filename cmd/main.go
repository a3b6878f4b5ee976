package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ulule/limiter/v3"

	"github.com/tinoosan/tillbook/internal/config"
	httpapi "github.com/tinoosan/tillbook/internal/httpapi/v1"
	"github.com/tinoosan/tillbook/internal/service/account"
	"github.com/tinoosan/tillbook/internal/service/journal"
	"github.com/tinoosan/tillbook/internal/service/ops"
	"github.com/tinoosan/tillbook/internal/service/settlement"
	"github.com/tinoosan/tillbook/internal/service/shift"
	"github.com/tinoosan/tillbook/internal/service/transfer"
	"github.com/tinoosan/tillbook/internal/storage"
	"github.com/tinoosan/tillbook/internal/storage/memory"
	pgstore "github.com/tinoosan/tillbook/internal/storage/postgres"
)

// backend is what both stores provide.
type backend interface {
	storage.Atomic
	storage.Records
	account.Repo
	account.Writer
	journal.Repo
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := buildLogger(cfg)
	slog.SetDefault(logger)

	var store backend
	var ready httpapi.ReadyChecker
	closeFn := func() {}
	if cfg.DatabaseURL != "" {
		if cfg.Migrate {
			if err := pgstore.Migrate(cfg.DatabaseURL, logger); err != nil {
				logger.Error("migrations failed", "err", err)
				os.Exit(1)
			}
		}
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL, pgstore.WithLockTimeout(cfg.LockTimeout))
		if err != nil {
			logger.Error("failed to connect to postgres", "err", err)
			os.Exit(1)
		}
		store, ready, closeFn = pg, pg, pg.Close
		logger.Info("storage backend: postgres")
	} else {
		store = memory.New(memory.WithLockTimeout(cfg.LockTimeout))
		logger.Info("storage backend: memory")
	}

	runner := ops.NewRunner(store, logger,
		ops.WithMaxAttempts(cfg.MaxAttempts),
		ops.WithBackoff(cfg.RetryBackoff),
	)
	accounts := account.New(store, store)
	transfers := transfer.New(runner)

	if err := applySourceLabels(ctx, accounts, cfg); err != nil {
		logger.Error("failed to apply source labels", "err", err)
	}
	if cfg.DevSeed {
		if err := seedDev(ctx, accounts, logger); err != nil {
			logger.Error("dev seed failed", "err", err)
		}
	}

	var lim *limiter.Limiter
	if cfg.RateLimit.Limit > 0 {
		lim = httpapi.NewLimiter(cfg.RateLimit)
	}
	api := httpapi.New(httpapi.Deps{
		Accounts:    accounts,
		Journal:     journal.New(store, runner),
		Transfers:   transfers,
		Settlements: settlement.New(runner),
		Shift:       shift.NewEngine(runner, transfers),
		Records:     store,
		Ready:       ready,
	}, httpapi.Options{
		Currency: cfg.Currency,
		Auth:     httpapi.AuthConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience},
		Limiter:  lim,
	}, logger)
	if !cfg.AuthEnabled() {
		logger.Warn("JWT_SECRET not set; every request acts as the local admin")
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Handler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("tillbook listening", "addr", srv.Addr, "currency", cfg.Currency)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}
	closeFn()
}

func buildLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// applySourceLabels stores the configured labels on first boot. Labels
// already saved through the API win over the environment.
func applySourceLabels(ctx context.Context, accounts account.Service, cfg config.Config) error {
	if cfg.CardSourceLabel == "" && cfg.PartnerSourceLabel == "" {
		return nil
	}
	m, err := accounts.Roles(ctx)
	if err != nil {
		return err
	}
	if m.CardSourceLabel != "" || m.PartnerSourceLabel != "" {
		return nil
	}
	m.CardSourceLabel = cfg.CardSourceLabel
	m.PartnerSourceLabel = cfg.PartnerSourceLabel
	_, err = accounts.UpdateRoles(ctx, m)
	return err
}
