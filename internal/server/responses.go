package server

// responses.go provides helper functions for sending HTTP responses from the
// credential API handlers.

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/entomo-labs/gdhcn-validator-go/app/internal/gdhcn"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/logger"
)

// ErrorResponse is the JSON error document returned to clients. The full
// error is logged server-side; the response carries a sanitized message.
type ErrorResponse struct {
	HTTPMethod string `json:"httpMethod"`
	RequestURI string `json:"requestUri"`

	StatusCode     int    `json:"statusCode"`
	StatusCodeText string `json:"statusCodeText"`

	// ErrorCode is the stable service error code, when the failure maps to one.
	ErrorCode string `json:"errorCode,omitempty"`

	Message string `json:"message,omitempty"`

	// ProviderCorrelationReference ties the response to the request id logged
	// server-side.
	ProviderCorrelationReference string `json:"providerCorrelationReference,omitempty"`

	ErrorDateTime string `json:"errorDateTime"`
}

// statusForCode maps service error codes to HTTP status codes.
func statusForCode(code gdhcn.ErrorCode) int {
	switch code {
	case gdhcn.ErrCodeValidation, gdhcn.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case gdhcn.ErrCodeNotFound:
		return http.StatusNotFound
	case gdhcn.ErrCodeAlreadyAccessed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithServiceError maps a service error to its HTTP status and sends
// the JSON error document. The full error detail is logged, not returned.
func RespondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := gdhcn.CodeOf(err)
	statusCode := statusForCode(code)
	requestID := middleware.GetReqID(r.Context())

	reqLogger := logger.ContextRequestLogger(r.Context())
	reqLogger.Warn("request failed",
		slog.String("error", err.Error()),
		slog.Int("status_code", statusCode),
		slog.String("request_id", requestID),
	)

	// Never leak storage or signing details.
	message := err.Error()
	if statusCode == http.StatusInternalServerError {
		message = "internal error"
	}

	RespondWithJSONPayload(w, statusCode, &ErrorResponse{
		HTTPMethod:                   r.Method,
		RequestURI:                   r.RequestURI,
		StatusCode:                   statusCode,
		StatusCodeText:               http.StatusText(statusCode),
		ErrorCode:                    string(code),
		Message:                      message,
		ProviderCorrelationReference: requestID,
		ErrorDateTime:                time.Now().UTC().Format(time.RFC3339),
	})
}

// RespondWithBadRequest sends a 400 for malformed request bodies.
func RespondWithBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	RespondWithJSONPayload(w, http.StatusBadRequest, &ErrorResponse{
		HTTPMethod:                   r.Method,
		RequestURI:                   r.RequestURI,
		StatusCode:                   http.StatusBadRequest,
		StatusCodeText:               http.StatusText(http.StatusBadRequest),
		Message:                      message,
		ProviderCorrelationReference: middleware.GetReqID(r.Context()),
		ErrorDateTime:                time.Now().UTC().Format(time.RFC3339),
	})
}

// RespondWithJSONPayload sends a JSON response with the given status code.
func RespondWithJSONPayload(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			// Headers are already written; log and stop.
			slog.Error("failed to encode JSON response",
				slog.String("error", err.Error()),
			)
		}
	}
}
