package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lanerush/pf-engine-go/internal/api"
	"github.com/lanerush/pf-engine-go/internal/config"
	"github.com/lanerush/pf-engine-go/internal/lanes"
	"github.com/lanerush/pf-engine-go/internal/ledger"
	"github.com/lanerush/pf-engine-go/internal/lib/logger/sl"
	"github.com/lanerush/pf-engine-go/internal/session"
	"github.com/lanerush/pf-engine-go/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", sl.Err(err))
		os.Exit(1)
	}

	log := setupLogger(cfg.Env)
	log.Info("starting pf-engine",
		slog.String("env", cfg.Env),
		slog.String("addr", cfg.HTTPAddr),
		slog.String("version", api.EngineVersion),
	)

	// Malformed tables must never serve a round.
	if err := lanes.ValidateAll(); err != nil {
		log.Error("multiplier table validation", sl.Err(err))
		os.Exit(1)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Error("open store", sl.Err(err))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Error("migrate", sl.Err(err))
		os.Exit(1)
	}

	l := ledger.NewSQLiteLedger(db.Handle())
	if err := l.SeedReserve(context.Background(), cfg.InitialReserve); err != nil {
		log.Error("seed reserve", sl.Err(err))
		os.Exit(1)
	}

	mgr := session.NewManager(db, l, log)
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewServer(mgr, log, cfg.RequestTimeout).Routes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", sl.Err(err))
			os.Exit(1)
		}
	}()
	log.Info("listening", slog.String("addr", cfg.HTTPAddr))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown", sl.Err(err))
	}
}

func setupLogger(env string) *slog.Logger {
	var handler slog.Handler
	switch env {
	case config.EnvProd:
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.New(handler)
}
