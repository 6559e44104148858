package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/prensadata/rotativa/breaker"
	"github.com/prensadata/rotativa/pipeline"
)

// Error kinds surfaced on the wire.
const (
	errValidation  = "validation_error"
	errUnavailable = "service_unavailable"
	errNotFound    = "not_found"
	errInternal    = "internal_error"
	errBadPayload  = "invalid_payload"
)

// errorBody is the uniform error response shape.
type errorBody struct {
	Error       string                `json:"error"`
	Detalles    []pipeline.FieldError `json:"detalles,omitempty"`
	SupportCode string                `json:"support_code,omitempty"`
	RetryAfter  int                   `json:"retry_after,omitempty"`
	RequestID   string                `json:"request_id"`
}

// supportCode builds an operator-facing reference like
// ERR_PIPE_LLM_0198F0A3B4C5.... The suffix is a V7 UUID, so codes sort by
// time in the logs.
func supportCode(segment string) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", ""))
	return "ERR_PIPE_" + segment + "_" + id
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, body errorBody) {
	body.RequestID = reqID(r.Context())
	writeJSON(w, status, body)
}

// writeProcessingError maps controller and adapter failures to wire errors.
func (s *Server) writeProcessingError(w http.ResponseWriter, r *http.Request, err error) {
	if ve, ok := pipeline.IsValidationError(err); ok {
		s.writeError(w, r, http.StatusBadRequest, errorBody{
			Error:    errValidation,
			Detalles: ve.Fields,
		})
		return
	}

	var sue *breaker.ServiceUnavailableError
	if errors.As(err, &sue) {
		retryAfter := int(sue.RetryAfter.Seconds())
		if retryAfter <= 0 {
			retryAfter = 30
		}
		s.writeError(w, r, http.StatusServiceUnavailable, errorBody{
			Error:       errUnavailable,
			SupportCode: supportCode("LLM"),
			RetryAfter:  retryAfter,
		})
		return
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.writeError(w, r, http.StatusServiceUnavailable, errorBody{
			Error:       errUnavailable,
			SupportCode: supportCode("HTTP"),
			RetryAfter:  30,
		})
		return
	}

	code := supportCode("HTTP")
	s.logger.Error("request processing failed",
		"request_id", reqID(r.Context()),
		"support_code", code,
		"error", err)
	s.writeError(w, r, http.StatusInternalServerError, errorBody{
		Error:       errInternal,
		SupportCode: code,
	})
}
