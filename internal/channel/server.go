package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// ServerOptions configures the HTTP surface around a Hub.
type ServerOptions struct {
	// WriteTimeout bounds each websocket write.
	WriteTimeout time.Duration
	// Metrics is served on /metrics when set.
	Metrics http.Handler
	// Status returns the JSON body of /status when set.
	Status func() any
	Log    *zap.Logger
}

// Server accepts observers over websocket on any path not claimed by the
// operational endpoints.
type Server struct {
	hub      *Hub
	opts     ServerOptions
	log      *zap.Logger
	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, opts ServerOptions) *Server {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	s := &Server{
		hub:  hub,
		opts: opts,
		log:  opts.Log,
		mux:  http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Displays are served from other origins on the local network.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.registerHandlers()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("/", s.handleObserver)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.opts.Status != nil {
		s.mux.HandleFunc("GET /status", s.handleStatus)
	}
	if s.opts.Metrics != nil {
		s.mux.Handle("GET /metrics", s.opts.Metrics)
	}
}

func (s *Server) handleObserver(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusUpgradeRequired)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.log.Debug("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	if err := s.hub.Serve(NewWebsocketConn(ws, s.opts.WriteTimeout)); err != nil {
		s.log.Debug("observer session ended", zap.String("remote", r.RemoteAddr), zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","observers":%d}`, s.hub.Len())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.opts.Status()); err != nil {
		s.log.Warn("encoding status", zap.Error(err))
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts the listener
// down and closes the hub so queued events reach observers first.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("event channel listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	// Hijacked websocket connections are not tracked by Shutdown.
	s.hub.Close()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
