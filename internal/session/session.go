// Package session resolves the identity the portal acts as. A signed
// session token names a faculty member; a missing or rejected token
// degrades to a fresh anonymous identity so the portal still loads.
package session

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"lectern/portal/internal/auth"
	"lectern/portal/internal/config"
	"lectern/portal/internal/model"
)

// Session holds the identity resolved at startup. The identity never
// changes for the lifetime of the process.
type Session struct {
	ident   model.Identity
	ready   chan struct{}
	changes chan model.Identity
	once    sync.Once
}

// Start resolves the session identity. Token problems are logged, not
// returned: the caller always gets a usable session.
func Start(cfg config.Config, logger *slog.Logger) *Session {
	s := &Session{
		ready:   make(chan struct{}),
		changes: make(chan model.Identity, 1),
	}
	if cfg.SessionToken != "" && cfg.JWTSecret != "" {
		ident, err := auth.ParseSessionToken(cfg.JWTSecret, cfg.JWTIssuer, cfg.SessionToken)
		if err != nil {
			logger.Warn("session token rejected, continuing anonymously", "error", err)
		} else {
			s.ident = ident
		}
	}
	if s.ident.ID == "" {
		s.ident = model.Identity{
			ID:        model.AnonymousIDPrefix + uuid.NewString(),
			Anonymous: true,
		}
	}
	logger.Info("session ready", "identity_id", s.ident.ID, "anonymous", s.ident.Anonymous)
	s.changes <- s.ident
	close(s.ready)
	return s
}

// Ready is closed once the identity is resolved.
func (s *Session) Ready() <-chan struct{} { return s.ready }

func (s *Session) Identity() model.Identity { return s.ident }

// Changes delivers the resolved identity to the portal loop. Closed by
// Close.
func (s *Session) Changes() <-chan model.Identity { return s.changes }

func (s *Session) Snapshot() model.Session {
	ready := false
	select {
	case <-s.ready:
		ready = true
	default:
	}
	return model.Session{IdentityID: s.ident.ID, Ready: ready}
}

func (s *Session) Close() {
	s.once.Do(func() { close(s.changes) })
}
