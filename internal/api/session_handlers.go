package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/store"
)

const maxBodyBytes = 64 << 10

type startSessionRequest struct {
	Keywords  string   `json:"keywords"`
	Location  string   `json:"location"`
	Platforms []string `json:"platforms"`
}

type sessionResponse struct {
	Session     extract.Session  `json:"session"`
	Status      extract.Status   `json:"status"`
	ResultCount int              `json:"result_count"`
	Records     []extract.Record `json:"records"`
}

// startSession handles POST /v1/sessions. It returns 202 {"session_id": ...},
// 400 for malformed or invalid queries, and 409 when a session is running.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	q := extract.Query{Keywords: req.Keywords, Location: req.Location, Platforms: req.Platforms}
	id, err := s.ctrl.Start(r.Context(), q)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{
			"session_id": id,
			"status":     string(extract.StatusRunning),
		})
	case errors.Is(err, extract.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, extract.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, "request canceled")
	default:
		s.logger.Error("start session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start session")
	}
}

// stopSession handles POST /v1/sessions/stop. It always returns 200; the body
// reports whether a running session observed the request.
func (s *Server) stopSession(w http.ResponseWriter, _ *http.Request) {
	stopping := s.ctrl.Stop()
	resp := map[string]any{"stopping": stopping}
	if _, status, ok := s.ctrl.Progress(); ok {
		resp["status"] = status
	}
	writeJSON(w, http.StatusOK, resp)
}

// currentSession handles GET /v1/sessions/current. It returns 404 until the
// first session has been started.
func (s *Server) currentSession(w http.ResponseWriter, _ *http.Request) {
	sess, records, ok := s.ctrl.Snapshot()
	if !ok {
		writeError(w, http.StatusNotFound, "no session has been started")
		return
	}
	if records == nil {
		records = []extract.Record{}
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Session:     sess,
		Status:      sess.Status,
		ResultCount: sess.ResultCount,
		Records:     records,
	})
}

// listSessions handles GET /v1/sessions?status=&limit=&offset=. It returns
// {"sessions": [...]}, 400 for invalid filters, 503 without a repository.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "session repository unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *extract.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		st := extract.Status(strings.ToLower(raw))
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		status = &st
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.repoTimeout)
	defer cancel()

	sessions, err := s.repo.ListSessions(ctx, status, limit, offset)
	if err != nil {
		s.logger.Error("list sessions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []extract.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// getSession handles GET /v1/sessions/{session_id}?limit=&offset=. It returns
// the persisted session with a page of its records, 404 when unknown, or 503
// without a repository.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "session repository unavailable")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "session_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	limit, offset, err := parseLimitOffset(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.repoTimeout)
	defer cancel()

	sess, err := s.repo.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("get session failed", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	records, err := s.repo.ListRecords(ctx, id, limit, offset)
	if err != nil {
		s.logger.Error("list records failed", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load records")
		return
	}
	if records == nil {
		records = []extract.Record{}
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Session:     sess,
		Status:      sess.Status,
		ResultCount: sess.ResultCount,
		Records:     records,
	})
}

func parseLimitOffset(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	limit := 0
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	limit, offset = store.ClampPage(limit, offset)
	return limit, offset, nil
}
