package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"bloodlink/internal/workflow"
	"bloodlink/pkg/types"
)

type errorResponse struct {
	Error     string            `json:"error"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
}

type dataResponse struct {
	Data     any      `json:"data"`
	Warnings []string `json:"warnings,omitempty"`
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}

func (s *Service) writeData(w http.ResponseWriter, status int, data any) {
	s.writeJSON(w, status, dataResponse{Data: data})
}

func (s *Service) writeOutcome(w http.ResponseWriter, outcome *workflow.Outcome) {
	s.writeJSON(w, http.StatusOK, dataResponse{Data: outcome, Warnings: outcome.Warnings})
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, status, errorResponse{
		Error:     message,
		RequestID: requestIDFromContext(r.Context()),
	})
}

func (s *Service) writeFieldErrors(w http.ResponseWriter, r *http.Request, fields map[string]string) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:     "Please fix the highlighted fields.",
		Fields:    fields,
		RequestID: requestIDFromContext(r.Context()),
	})
}

func (s *Service) internalServerError(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusInternalServerError, "internal server error")
}

// statusFor maps an error kind to its HTTP status. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, types.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, types.ErrInvalidStateTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrInvalidInput), errors.Is(err, types.ErrInvalidCoordinate):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// handleError writes err as a response. Kinded errors carry their message to
// the client; anything else is logged with msg and hidden behind a 500.
func (s *Service) handleError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	var fields fieldErrors
	if errors.As(err, &fields) {
		s.writeFieldErrors(w, r, fields)
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithField("http_request_id", requestIDFromContext(r.Context())).Error(msg)
		s.internalServerError(w, r)
		return
	}

	s.logger.WithError(err).WithField("status", status).Debug(msg)
	s.writeError(w, r, status, err.Error())
}
