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

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/bankfeed/internal/adapter/driven/enablebanking"
	sqliteadapter "github.com/ericfisherdev/bankfeed/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/bankfeed/internal/adapter/driving/http"
	"github.com/ericfisherdev/bankfeed/internal/application"
	"github.com/ericfisherdev/bankfeed/internal/config"
	"github.com/ericfisherdev/bankfeed/internal/cryptox"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"lookback_days", cfg.LookbackDays,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire driven adapters.
	cipher, err := cryptox.NewTokenCipher(cfg.MasterKey)
	if err != nil {
		return err
	}
	credStore := sqliteadapter.NewCredentialRepo(db, cipher)
	txStore := sqliteadapter.NewTransactionRepo(db)

	ebClient, err := enablebanking.NewClient(cfg.EBApplicationID, cfg.EBPrivateKeyPEM, cfg.EBBaseURL, cfg.ProviderTimeout)
	if err != nil {
		return err
	}
	slog.Info("provider client created", "application_id", cfg.EBApplicationID)

	// 6. Wire application services.
	bankingSvc := application.NewBankingService(ebClient, cfg.LookbackDays)
	connectionSvc := application.NewConnectionService(ebClient, credStore)
	ingestSvc := application.NewIngestService(ebClient, credStore, txStore, cfg.LookbackDays)

	// 7. Create HTTP handler and serve.
	apiHandler := httphandler.NewHandler(bankingSvc, connectionSvc, ingestSvc, credStore, cfg.AuthSecret, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("bankfeed started", "listen_addr", cfg.ListenAddr)

	// 8. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 9. Graceful shutdown with 10s timeout to drain in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
