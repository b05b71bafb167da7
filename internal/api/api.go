// Package api provides the HTTP control surface for the warming engine.
//
// It exposes endpoints for starting and stopping a warming campaign, toggling
// individual contacts, reloading the media catalogue, and reading per-contact
// statistics. All responses use a consistent JSON envelope.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/warmline/warmline/internal/media"
	"github.com/warmline/warmline/internal/store"
	"github.com/warmline/warmline/internal/warming"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		if addr != "" {
			o.Addr = addr
		}
	}
}

// Server serves the warming control API.
type Server struct {
	session  *warming.Session
	selector *media.Selector
	stats    store.StatsRepo
	httpSrv  *http.Server
}

// NewServer creates an API server bound to a warming session.
func NewServer(session *warming.Session, selector *media.Selector, stats store.StatsRepo, opts ...Option) *Server {
	options := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&options)
	}

	s := &Server{
		session:  session,
		selector: selector,
		stats:    stats,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/warming/start", s.startHandler)
	mux.HandleFunc("/warming/stop", s.stopHandler)
	mux.HandleFunc("/warming/status", s.statusHandler)
	mux.HandleFunc("/contacts/enable", s.enableContactHandler)
	mux.HandleFunc("/contacts/disable", s.disableContactHandler)
	mux.HandleFunc("/media/reload", s.reloadMediaHandler)
	mux.HandleFunc("/stats", s.statsHandler)

	s.httpSrv = &http.Server{
		Addr:              options.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start runs the HTTP server until it fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("API server listening", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
