// Package server exposes the stored collection results over a small
// read-only REST API so that dashboards and operators can query the latest
// per-port state and history without touching the database directly.
package server

import (
	"context"
	"io"
	"log/slog"
	"sync"

	sqlitestore "github.com/vpbank/sfp_collector/pkg/sfpcollector/store/sqlite"
)

// Server takes care of instantiating and running the HTTP interface.
type Server struct {
	httpListenAddr string
	httpStarted    *sync.WaitGroup
	httpStopped    *sync.WaitGroup
	ctx            context.Context
	cancel         context.CancelFunc
	logger         *slog.Logger
	db             *sqlitestore.SqliteStore
}

// Config is the server configuration.
type Config struct {
	HTTPListenAddr string
	DB             *sqlitestore.SqliteStore
	Logger         *slog.Logger
}

func New(c Config) *Server {
	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Server{
		httpListenAddr: c.HTTPListenAddr,
		httpStarted:    &sync.WaitGroup{},
		httpStopped:    &sync.WaitGroup{},
		logger:         logger.With(slog.String("component", "http_server")),
		db:             c.DB,
	}
}

func (s *Server) Start() error {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	// Start the HTTP interface
	s.httpStarted.Add(1)
	s.httpStopped.Add(1)
	err := s.startHTTP()
	if err != nil {
		return err
	}
	s.httpStarted.Wait()

	return nil
}

// Shutdown stops the HTTP interface and waits for it to drain. The store is
// owned by the application and is not closed here.
func (s *Server) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	s.httpStopped.Wait()
	s.logger.Info("http server shut down")
}

type noopWriter struct{}

var _ io.Writer = noopWriter{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
