// Package profile manages the faculty profile record backing the
// portal: first-login bootstrap and the realtime watch that replaces
// the in-memory copy wholesale on every store change.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lectern/portal/internal/docstore"
	"lectern/portal/internal/model"
)

const (
	defaultDisplayName = "New Faculty"
	defaultCourse      = "CS101"

	shortIDLength = 8
)

// Path returns the store path of an identity's profile record.
func Path(appID, identityID string) string {
	return "apps/" + appID + "/users/" + identityID + "/profile"
}

// UsersPrefix returns the store path prefix shared by every profile
// record of the app.
func UsersPrefix(appID string) string {
	return "apps/" + appID + "/users/"
}

// ShortID derives the public faculty id from an identity id. Short
// identity ids are used whole.
func ShortID(identityID string) string {
	if len(identityID) <= shortIDLength {
		return identityID
	}
	return identityID[:shortIDLength]
}

// Bootstrap loads the identity's profile, seeding a default record on
// first access.
func Bootstrap(ctx context.Context, store docstore.Store, appID string, ident model.Identity, logger *slog.Logger) (model.Profile, error) {
	path := Path(appID, ident.ID)
	raw, err := store.GetRecord(ctx, path)
	if err == nil {
		var prof model.Profile
		if err := json.Unmarshal(raw, &prof); err != nil {
			return model.Profile{}, fmt.Errorf("decode profile %s: %w", path, err)
		}
		return prof, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return model.Profile{}, fmt.Errorf("load profile %s: %w", path, err)
	}

	prof := model.Profile{
		OwnerID:        ident.ID,
		DisplayName:    ident.DisplayName,
		FacultyShortID: ShortID(ident.ID),
		Email:          ident.Email,
		AssignedCourse: defaultCourse,
		LastLogin:      time.Now().UTC(),
	}
	if prof.DisplayName == "" {
		prof.DisplayName = defaultDisplayName
	}
	if err := store.SetRecord(ctx, path, prof); err != nil {
		return model.Profile{}, fmt.Errorf("seed profile %s: %w", path, err)
	}
	logger.Info("profile seeded", "path", path, "faculty_short_id", prof.FacultyShortID)
	return prof, nil
}

// Watch decodes raw profile record snapshots into model.Profile
// values. Malformed snapshots are logged and dropped so the portal
// keeps its last good copy.
type Watch struct {
	rw  *docstore.RecordWatcher
	ch  chan model.Profile
	log *slog.Logger
}

// Open bootstraps the profile and starts a watch on its record.
func Open(ctx context.Context, store docstore.Store, appID string, ident model.Identity, logger *slog.Logger) (model.Profile, *Watch, error) {
	prof, err := Bootstrap(ctx, store, appID, ident, logger)
	if err != nil {
		return model.Profile{}, nil, err
	}
	rw, err := store.WatchRecord(ctx, Path(appID, ident.ID))
	if err != nil {
		return model.Profile{}, nil, fmt.Errorf("watch profile: %w", err)
	}
	w := &Watch{rw: rw, ch: make(chan model.Profile, 1), log: logger}
	go w.run()
	return prof, w, nil
}

// Snapshots delivers each replacement profile, newest wins.
func (w *Watch) Snapshots() <-chan model.Profile { return w.ch }

func (w *Watch) Close() { w.rw.Close() }

func (w *Watch) run() {
	defer close(w.ch)
	for raw := range w.rw.Snapshots() {
		var prof model.Profile
		if err := json.Unmarshal(raw, &prof); err != nil {
			w.log.Warn("profile snapshot malformed", "error", err)
			continue
		}
		w.push(prof)
	}
}

func (w *Watch) push(prof model.Profile) {
	for {
		select {
		case w.ch <- prof:
			return
		default:
			select {
			case <-w.ch:
			default:
			}
		}
	}
}
