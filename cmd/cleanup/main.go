// Command cleanup removes profiles left behind by anonymous sessions that
// have not logged in within the retention window. It is intended to be
// invoked by an external cron job, not as an in-process goroutine.
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"lectern/portal/internal/clients"
	"lectern/portal/internal/config"
	"lectern/portal/internal/docstore"
	"lectern/portal/internal/model"
	"lectern/portal/internal/profile"
)

func main() {
	maxAge := flag.Duration("max-age", 720*time.Hour, "delete anonymous profiles idle longer than this")
	dryRun := flag.Bool("dry-run", false, "report matching profiles without deleting them")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration invalid: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	backends, err := clients.New(ctx, cfg)
	if err != nil {
		logger.Error("store connection failed", "error", err)
		os.Exit(1)
	}
	defer backends.Close()

	store := docstore.NewPostgres(backends.Pool, backends.Redis, logger)

	cutoff := time.Now().UTC().Add(-*maxAge)
	prefix := profile.UsersPrefix(cfg.AppID) + model.AnonymousIDPrefix

	records, err := store.ListRecords(ctx, prefix)
	if err != nil {
		logger.Error("list anonymous profiles failed", "error", err)
		os.Exit(1)
	}

	var deleted, skipped int
	for _, rec := range records {
		var prof model.Profile
		if err := json.Unmarshal(rec.Doc, &prof); err != nil {
			logger.Warn("profile record malformed", "path", rec.Path, "error", err)
			skipped++
			continue
		}
		if prof.LastLogin.After(cutoff) {
			continue
		}
		if *dryRun {
			logger.Info("would delete profile", "path", rec.Path, "last_login", prof.LastLogin)
			deleted++
			continue
		}
		if err := store.DeleteRecord(ctx, rec.Path); err != nil {
			logger.Error("delete profile failed", "path", rec.Path, "error", err)
			skipped++
			continue
		}
		deleted++
	}

	logger.Info("cleanup completed",
		"deleted", deleted,
		"skipped", skipped,
		"cutoff", cutoff,
		"dry_run", *dryRun,
	)
}
