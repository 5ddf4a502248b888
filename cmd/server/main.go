package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lectern/portal/internal/clients"
	"lectern/portal/internal/config"
	"lectern/portal/internal/docstore"
	internalhttp "lectern/portal/internal/http"
	"lectern/portal/internal/jobs"
	"lectern/portal/internal/portal"
	"lectern/portal/internal/session"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration invalid: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := clients.New(ctx, cfg)
	if err != nil {
		log.Fatalf("store connection failed: %v", err)
	}
	defer backends.Close()

	store := docstore.NewPostgres(backends.Pool, backends.Redis, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema init failed: %v", err)
	}

	sess := session.Start(cfg, logger)
	defer sess.Close()

	p := portal.New(cfg, store, sess, logger)
	go p.Run(ctx)

	server := internalhttp.NewServer(cfg, p, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	jobs.StartStoreHealthJob(ctx, cfg, backends.Pool, backends.Redis, logger)

	go func() {
		log.Printf("portal http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
