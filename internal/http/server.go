package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lectern/portal/internal/config"
	"lectern/portal/internal/model"
	"lectern/portal/internal/operations"
	"lectern/portal/internal/portal"
)

type Server struct {
	cfg    config.Config
	portal *portal.Portal
	log    *slog.Logger
}

func NewServer(cfg config.Config, p *portal.Portal, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, portal: p, log: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/state", s.handleGetState)
	r.Get("/session", s.handleGetSession)
	r.Get("/profile", s.handleGetProfile)
	r.Get("/assignments", s.handleGetAssignments)
	r.Get("/schedule", s.handleGetSchedule)
	r.Get("/forms", s.handleGetForms)
	r.Patch("/forms/assignment", s.handlePatchAssignmentForm)
	r.Patch("/forms/schedule", s.handlePatchScheduleForm)
	r.Post("/assignments", s.handlePostAssignment)
	r.Post("/schedule", s.handlePostSchedule)
	r.Get("/stream", s.handleStream)

	return r
}

// Models

type formsResponse struct {
	Assignment model.AssignmentForm `json:"assignment"`
	Schedule   model.ScheduleForm   `json:"schedule"`
}

type patchAssignmentFormRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	DueDate     *string `json:"dueDate"`
}

type patchScheduleFormRequest struct {
	Location *string `json:"location"`
	Time     *string `json:"time"`
	Day      *string `json:"day"`
}

// Handlers

func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.portal.State())
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.portal.Session())
}

func (s *Server) handleGetProfile(w http.ResponseWriter, _ *http.Request) {
	prof, ok := s.portal.Profile()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "not_ready")
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

func (s *Server) handleGetAssignments(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.portal.Assignments())
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.portal.Schedule())
}

func (s *Server) handleGetForms(w http.ResponseWriter, _ *http.Request) {
	assignment, schedule := s.portal.Forms()
	writeJSON(w, http.StatusOK, formsResponse{Assignment: assignment, Schedule: schedule})
}

func (s *Server) handlePatchAssignmentForm(w http.ResponseWriter, r *http.Request) {
	var req patchAssignmentFormRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, decodeErrorCode(err))
		return
	}
	form := s.portal.UpdateAssignmentForm(req.Title, req.Description, req.DueDate)
	writeJSON(w, http.StatusOK, form)
}

func (s *Server) handlePatchScheduleForm(w http.ResponseWriter, r *http.Request) {
	var req patchScheduleFormRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, decodeErrorCode(err))
		return
	}
	form := s.portal.UpdateScheduleForm(req.Location, req.Time, req.Day)
	writeJSON(w, http.StatusOK, form)
}

func (s *Server) handlePostAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := s.portal.SubmitAssignment(r.Context())
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handlePostSchedule(w http.ResponseWriter, r *http.Request) {
	e, err := s.portal.SubmitSchedule(r.Context())
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Utilities

func writeOperationError(w http.ResponseWriter, err error) {
	var opErr *operations.Error
	if !errors.As(err, &opErr) {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	switch opErr.Code {
	case operations.ErrStoreUnavailable:
		writeError(w, http.StatusServiceUnavailable, opErr.Code)
	case operations.ErrStoreWriteFailed:
		writeError(w, http.StatusBadGateway, opErr.Code)
	case operations.ErrServerError:
		writeError(w, http.StatusInternalServerError, opErr.Code)
	default:
		writeError(w, http.StatusUnprocessableEntity, opErr.Code)
	}
}

func decodeErrorCode(err error) string {
	// encoding/json has no typed error for DisallowUnknownFields; match
	// its stable message prefix.
	if strings.Contains(err.Error(), "json: unknown field") {
		return "unknown_field"
	}
	return "invalid_request"
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
