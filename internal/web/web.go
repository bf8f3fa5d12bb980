package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"notioncal/internal/cache"
	"notioncal/internal/config"
	appLog "notioncal/internal/log"
)

const (
	contentType     = "text/calendar; charset=utf-8"
	shutdownTimeout = 10 * time.Second
)

// Reader returns the current rendered feed.
type Reader interface {
	ReadAll() (string, error)
}

// Server serves the cached calendar on the secret path. Everything else is
// a 404, so the path is the only credential.
type Server struct {
	cfg  *config.Config
	feed Reader
	mux  *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, feed Reader) *Server {
	s := &Server{
		cfg:  cfg,
		feed: feed,
		mux:  http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	// Exact match only; "/" without a pattern would also catch subpaths.
	s.mux.HandleFunc("/"+s.cfg.SecretPath, s.handleFeed)
	s.mux.HandleFunc("/", http.NotFound)
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := s.feed.ReadAll()
	switch {
	case errors.Is(err, cache.ErrEmpty):
		writeError(w, http.StatusServiceUnavailable, "calendar not generated yet")
		return
	case err != nil:
		appLog.Error("failed to read cached calendar", err)
		writeError(w, http.StatusInternalServerError, "failed to read calendar")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write([]byte(body)); err != nil {
		appLog.Debug("failed to write calendar response", "err", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg + "\n"))
}
