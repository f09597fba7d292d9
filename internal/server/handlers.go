package server

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fakeyudi/focuspet/internal/api"
	"github.com/fakeyudi/focuspet/internal/gaze"
	"github.com/fakeyudi/focuspet/internal/store"
)

// DefaultScore stands in for sessions that ended without any focus data.
const DefaultScore = 0.5

const unfocusedMessage = "Eyes back on your work!"

// Recommend maps a 0..1 eye-activity score to a break length in seconds.
// Better focus earns a shorter break.
func Recommend(score float64) int {
	switch {
	case score >= 0.8:
		return 180
	case score >= 0.6:
		return 300
	case score >= 0.4:
		return 420
	default:
		return 600
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, api.ErrorResponse{Error: msg})
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	id := s.newID()
	now := s.now()
	if err := s.store.CreateSession(r.Context(), id, now); err != nil {
		s.logger.Printf("Error creating session: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to start session")
		return
	}
	writeJSON(w, http.StatusOK, api.StartSessionResponse{SessionID: id, StartTime: api.Timestamp{Time: now}, Status: "started"})
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	var req api.EndSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id required")
		return
	}

	sess, err := s.store.EndSession(r.Context(), req.SessionID, s.now(), req.FocusPercentage)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		s.logger.Printf("Error ending session %s: %v", req.SessionID, err)
		writeError(w, http.StatusInternalServerError, "Failed to end session")
		return
	}

	resp := api.EndSessionResponse{
		SessionID: sess.ID,
		EndTime:   api.Timestamp{Time: *sess.EndTime},
		Duration:  *sess.Duration,
		Status:    "completed",
	}
	if sess.Score != nil {
		resp.EyeActivityScore = *sess.Score
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) eyeActivity(w http.ResponseWriter, r *http.Request) {
	var req api.EyeActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id required")
		return
	}

	now := s.now()
	err := s.store.LogEyeActivity(r.Context(), req.SessionID, now, req.GazeFocused)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		s.logger.Printf("Error logging eye activity: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to log eye activity")
		return
	}
	writeJSON(w, http.StatusOK, api.EyeActivityResponse{Status: "logged", Timestamp: api.Timestamp{Time: now}})
}

func (s *Server) recommendInterval(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["session_id"]
	sess, err := s.store.Session(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		s.logger.Printf("Error loading session %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to load session")
		return
	}

	score := DefaultScore
	if sess.Score != nil {
		score = *sess.Score
	}
	secs := Recommend(score)
	writeJSON(w, http.StatusOK, api.Recommendation{
		SessionID:               id,
		RecommendedBreakSeconds: secs,
		RecommendedBreakMinutes: float64(secs) / 60,
		EyeActivityScore:        score,
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context(), s.now())
	if err != nil {
		s.logger.Printf("Error fetching stats: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch stats")
		return
	}
	writeJSON(w, http.StatusOK, api.Stats{
		TotalSessions:     st.TotalSessions,
		TotalFocusTime:    st.TotalFocusSeconds,
		AverageSession:    st.AverageMinutes,
		TodaySessions:     st.TodaySessions,
		AverageFocusScore: int(math.Round(st.AverageScore * 100)),
		BestFocusScore:    int(math.Round(st.BestScore * 100)),
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.Health{Status: "healthy", Service: "focuspet"})
}

type trackingRequest struct {
	SessionID string `json:"session_id"`
}

// gazeRequest is one sample posted by a gaze tracker.
type gazeRequest struct {
	SessionID string `json:"session_id"`
	IsFocused *bool  `json:"is_focused"`
}

func (s *Server) startTracking(w http.ResponseWriter, r *http.Request) {
	var req trackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id required")
		return
	}

	s.mu.Lock()
	s.relay = relayState{sessionID: req.SessionID}
	s.mu.Unlock()

	s.logger.Printf("tracking session %s", req.SessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "started", "session_id": req.SessionID})
}

func (s *Server) stopTracking(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	id := s.relay.sessionID
	s.relay = relayState{}
	s.mu.Unlock()

	if id != "" {
		s.logger.Printf("stopped tracking session %s", id)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// gaze accepts one tracker sample for the tracked session, records it and
// fans it out as gaze_update.
func (s *Server) gaze(w http.ResponseWriter, r *http.Request) {
	var req gazeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SessionID == "" || req.IsFocused == nil {
		writeError(w, http.StatusBadRequest, "session_id and is_focused required")
		return
	}
	focused := *req.IsFocused

	s.mu.Lock()
	if s.relay.sessionID != req.SessionID {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "Session is not being tracked")
		return
	}
	s.relay.total++
	if focused {
		s.relay.focused++
	}
	pct := float64(s.relay.focused) / float64(s.relay.total) * 100
	s.mu.Unlock()

	now := s.now()
	if err := s.store.LogEyeActivity(r.Context(), req.SessionID, now, focused); err != nil {
		// Sessions started against another backend are relayed but not stored.
		s.logger.Printf("Warning: not recording eye activity for %s: %v", req.SessionID, err)
	}

	s.hub.broadcast("", gaze.Frame{
		Type:            gaze.FrameGazeUpdate,
		SessionID:       req.SessionID,
		IsFocused:       &focused,
		FocusPercentage: pct,
		Timestamp:       now.Format(time.RFC3339Nano),
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "focus_percentage": pct})
}

type alertRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// unfocusedAlert sends unfocused_alert to the session's room. It is posted
// by a client whose window lost visibility, not by the gaze tracker.
func (s *Server) unfocusedAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id required")
		return
	}
	if req.Message == "" {
		req.Message = unfocusedMessage
	}

	s.hub.broadcast(req.SessionID, gaze.Frame{
		Type:      gaze.FrameUnfocusedAlert,
		SessionID: req.SessionID,
		Message:   req.Message,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "session_id": req.SessionID})
}
