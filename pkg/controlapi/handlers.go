package controlapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/harun/warden/internal/observability"
	"github.com/harun/warden/pkg/agent"
	"github.com/harun/warden/pkg/exchangelog"
	"github.com/harun/warden/pkg/taskqueue"
)

const (
	maxBodyBytes         = 1 << 20
	defaultExchangeLimit = 20
	maxExchangeLimit     = 200
)

type successResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type addTaskRequest struct {
	Name     string            `json:"name"`
	Prompt   string            `json:"prompt"`
	Priority *int              `json:"priority"`
	Metadata map[string]string `json:"metadata"`
}

type addTaskResponse struct {
	Success bool           `json:"success"`
	Task    taskqueue.Task `json:"task"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

// lifecycle wraps a controller transition. Failures are logged and reported
// as success=false with status 200.
func (s *Server) lifecycle(action string, fn func(*http.Request) error) http.HandlerFunc {
	return s.requireSecret(func(w http.ResponseWriter, r *http.Request) {
		err := fn(r)
		ok := err == nil

		log := s.logger.Info()
		switch {
		case errors.Is(err, agent.ErrAlreadyRunning), errors.Is(err, agent.ErrNotRunning):
			log = s.logger.Debug().Err(err)
		case err != nil:
			log = s.logger.Error().Err(err)
		}
		log.Str("action", action).Bool("success", ok).Msg("Control action")

		s.audit(r.Context(), action, r, ok, nil)
		writeJSON(w, http.StatusOK, successResponse{Success: ok})
	})
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, successResponse{Error: "failed to read body"})
		return
	}

	if err := validateBody(addTaskLoader, body); err != nil {
		s.audit(r.Context(), "add_task", r, false, map[string]interface{}{"error": err.Error()})
		writeJSON(w, http.StatusBadRequest, successResponse{Error: err.Error()})
		return
	}

	var req addTaskRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, successResponse{Error: "invalid JSON body"})
		return
	}

	priority := taskqueue.PriorityManual
	if req.Priority != nil {
		priority = *req.Priority
	}

	task := s.controller.Enqueue(req.Name, req.Prompt, priority, req.Metadata)
	s.audit(r.Context(), "add_task", r, true, map[string]interface{}{
		"task_id":  task.ID,
		"task":     task.Name,
		"priority": task.Priority,
	})
	writeJSON(w, http.StatusOK, addTaskResponse{Success: true, Task: task})
}

func (s *Server) handleExchanges(w http.ResponseWriter, r *http.Request) {
	if s.exchanges == nil {
		writeJSON(w, http.StatusNotFound, successResponse{Error: "exchange store not configured"})
		return
	}

	limit := defaultExchangeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, successResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxExchangeLimit)
	}

	exchanges, err := s.exchanges.Recent(r.Context(), r.URL.Query().Get("name"), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list exchanges")
		writeJSON(w, http.StatusInternalServerError, successResponse{Error: "failed to list exchanges"})
		return
	}
	if exchanges == nil {
		exchanges = []exchangelog.Exchange{}
	}
	writeJSON(w, http.StatusOK, exchanges)
}

// requireSecret rejects requests without the shared secret when one is set.
func (s *Server) requireSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.sharedSecret != "" {
			got := r.Header.Get(SecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.sharedSecret)) != 1 {
				s.logger.Warn().Str("path", r.URL.Path).Str("remote", r.RemoteAddr).Msg("Rejected request without valid secret")
				writeJSON(w, http.StatusUnauthorized, successResponse{Error: "unauthorized"})
				return
			}
		}
		if s.shuttingDown() {
			writeJSON(w, http.StatusServiceUnavailable, successResponse{Error: "shutting down"})
			return
		}
		next(w, r)
	}
}

func (s *Server) audit(ctx context.Context, action string, r *http.Request, success bool, metadata map[string]interface{}) {
	observability.RecordControlAudit(ctx, action, r.RemoteAddr, success, metadata)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
