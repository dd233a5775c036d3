// Package server serves a generated docs tree and pushes artifact changes
// to browsers over a websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jcdickinson/ferrisnav/internal/db"
	"github.com/jcdickinson/ferrisnav/internal/registry"
	"github.com/jcdickinson/ferrisnav/internal/rpc"
	"github.com/klauspost/compress/gzhttp"
)

const shutdownTimeout = 5 * time.Second

// BuildLister reports recorded builds for /api/status.
type BuildLister interface {
	ListBuilds(latestOnly bool) ([]db.Build, error)
}

type Server struct {
	dir     string
	builds  BuildLister
	updates *registry.Registry[rpc.Update]
	hub     *hub
}

// New returns a server for the docs tree at dir. builds may be nil.
func New(dir string, builds BuildLister) *Server {
	updates := registry.New[rpc.Update]()
	return &Server{
		dir:     dir,
		builds:  builds,
		updates: updates,
		hub:     newHub(updates),
	}
}

// Updates is the handoff artifact changes are published to. While no
// websocket client is connected the newest update waits there.
func (s *Server) Updates() *registry.Registry[rpc.Update] {
	return s.updates
}

// Handler routes static files, the status API and the live socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /live", s.handleLive)
	mux.Handle("GET /", gzhttp.GzipHandler(http.FileServer(http.Dir(s.dir))))
	return mux
}

// Run listens on addr, watches the docs tree and serves until ctx is
// canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpServer := &http.Server{Handler: s.Handler()}

	watchErr := make(chan error, 1)
	go func() { watchErr <- s.Watch(ctx) }()

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.Serve(listener) }()

	slog.Info("serving docs", "addr", listener.Addr().String(), "dir", s.dir)

	var errs []error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("serving: %w", err))
		}
		serveErr = nil
	case err := <-watchErr:
		if err != nil {
			errs = append(errs, fmt.Errorf("watching %s: %w", s.dir, err))
		}
		watchErr = nil
	}

	// Hijacked websocket connections are not closed by Shutdown.
	s.hub.close()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown error", "error", err)
		errs = append(errs, err)
	}
	if serveErr != nil {
		if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("serving: %w", err))
		}
	}
	cancel()
	if watchErr != nil {
		if err := <-watchErr; err != nil {
			errs = append(errs, fmt.Errorf("watching %s: %w", s.dir, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := rpc.StatusResponse{OutputDir: s.dir, Builds: []rpc.BuildStatus{}}
	if s.builds != nil {
		builds, err := s.builds.ListBuilds(true)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Builds = rpc.BuildStatuses(builds)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
