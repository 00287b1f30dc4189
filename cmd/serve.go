package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/arcticwatch/arcticwatch/internal/corpus"
	"github.com/arcticwatch/arcticwatch/internal/handlers"
	"github.com/arcticwatch/arcticwatch/internal/storage"
)

// statusServer serves the status API next to the watch loop.
type statusServer struct {
	server *http.Server
	errs   chan error
}

func startStatusServer(addr string, runStore *storage.RunStore, c *corpus.Corpus) (*statusServer, error) {
	handler := handlers.New(runStore, c)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &statusServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		errs: make(chan error, 1),
	}

	go func() {
		slog.Info("Status API available", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errs <- err
		}
	}()

	return s, nil
}

// Err delivers a fatal serve error.
func (s *statusServer) Err() <-chan error {
	return s.errs
}

func (s *statusServer) Shutdown() error {
	slog.Info("Shutting down server...")
	// Give server 5 seconds to shut down gracefully
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "err", err)
		return err
	}
	slog.Info("Server stopped")
	return nil
}
