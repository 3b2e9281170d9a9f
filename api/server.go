// Package api exposes the control surface over HTTP: the listing and flag
// operations a popup UI performs, the request/response message bridge to the
// active page session, and a websocket stream of store change events so open
// listings refresh without polling.
//
// A missing page session is a normal, degraded state (the browser may be on a
// page veil cannot attach to): message dispatch answers with a described
// failure and state reads return empty tab info, but nothing errors at the
// transport level.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/hazyhaar/veil/preset"
	"github.com/hazyhaar/veil/session"
	"github.com/hazyhaar/veil/store"
)

// Config for creating a Server.
type Config struct {
	Store    *store.Store
	Sessions *session.Manager
	Presets  *preset.Catalog
	Logger   *slog.Logger
}

// Server is the HTTP control surface.
type Server struct {
	st       *store.Store
	sessions *session.Manager
	presets  *preset.Catalog
	logger   *slog.Logger
	mux      *chi.Mux
	upgrader websocket.Upgrader
}

// NewServer wires the routes. Presets may be nil (no bundled catalog).
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		st:       cfg.Store,
		sessions: cfg.Sessions,
		presets:  cfg.Presets,
		logger:   cfg.Logger,
		upgrader: websocket.Upgrader{
			// The control surface binds loopback; cross-origin popups are
			// expected during development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/state", s.handleState)
		r.Put("/flags/{key}", s.handleSetFlag)
		r.Post("/mode", s.handleSetMode)

		r.Get("/domains", s.handleDomains)
		r.Get("/domains/{domain}/marks", s.handleListMarks)
		r.Post("/marks", s.handleAddMark)
		r.Delete("/domains/{domain}/marks/{kind}", s.handleRemoveMark)
		r.Put("/domains/{domain}/marks/{kind}/name", s.handleRenameMark)

		r.Get("/export", s.handleExport)
		r.Post("/import", s.handleImport)

		r.Get("/presets/{domain}", s.handlePresets)
		r.Post("/presets/{domain}/accept", s.handleAcceptPreset)

		r.Get("/sessions", s.handleSessions)
		r.Put("/sessions/active", s.handleSetActiveSession)
		r.Post("/message", s.handleMessage)
		r.Get("/snapshot", s.handleSnapshot)

		r.Get("/events", s.handleEvents)
		r.Get("/ws", s.handleWS)
	})
	s.mux = r
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// Serve runs the server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("api: listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("api: encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}
