// Package server is the reference session-control, statistics and gaze
// relay backend served by `focuspet serve`.
package server

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/net/websocket"

	"github.com/fakeyudi/focuspet/internal/store"
)

// Server holds the backend's dependencies and relay state.
type Server struct {
	store  *store.Store
	hub    *hub
	logger *log.Logger
	now    func() time.Time
	newID  func() string

	mu    sync.Mutex
	relay relayState
}

// relayState is the tracking session the relay forwards samples for.
type relayState struct {
	sessionID string
	focused   int
	total     int
}

// New returns a Server over st. A nil logger discards output.
func New(st *store.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		store:  st,
		hub:    newHub(),
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Router creates and configures a new router with all API endpoints.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(allowCORS)

	api := r.PathPrefix("/api").Subrouter()

	// Session control
	api.HandleFunc("/start_session", s.startSession).Methods(http.MethodPost)
	api.HandleFunc("/end_session", s.endSession).Methods(http.MethodPost)
	api.HandleFunc("/eye_activity", s.eyeActivity).Methods(http.MethodPost)
	api.HandleFunc("/recommend_interval/{session_id}", s.recommendInterval).Methods(http.MethodGet)

	// Statistics
	api.HandleFunc("/stats", s.stats).Methods(http.MethodGet)
	api.HandleFunc("/health", s.health).Methods(http.MethodGet)

	// Gaze relay
	api.HandleFunc("/start_tracking", s.startTracking).Methods(http.MethodPost)
	api.HandleFunc("/stop_tracking", s.stopTracking).Methods(http.MethodPost)
	api.HandleFunc("/gaze", s.gaze).Methods(http.MethodPost)
	api.HandleFunc("/unfocused_alert", s.unfocusedAlert).Methods(http.MethodPost)

	r.Handle("/ws", websocket.Handler(s.hub.handleWSConn)).Methods(http.MethodGet)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}
