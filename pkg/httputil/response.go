package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/malyga99/job-flow-auth/pkg/errors"
	"github.com/malyga99/job-flow-auth/pkg/logger"
	"github.com/malyga99/job-flow-auth/pkg/validator"
)

// ErrorResponse is the error envelope returned by every endpoint:
// a safe message, the HTTP status it was sent with, and the server time.
type ErrorResponse struct {
	Message string    `json:"message"`
	Status  int       `json:"status"`
	Time    time.Time `json:"time"`
}

// WriteJSON writes a JSON response with the given status code.
// If encoding fails, headers are already sent so nothing can be done.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps an error to the standard error envelope. AppErrors keep
// their message; anything else is reported as an internal error with a
// generic message and logged with full context, since raw provider error
// bodies and cryptographic material must never reach the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() {
		l = fallback
	}

	status := apperrors.HTTPStatus(err)
	message := "an internal error occurred"

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status = appErr.Status
		if appErr.Status < http.StatusInternalServerError {
			message = appErr.Message
		}
		if appErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(appErr.RetryAfter.Seconds())))
		}
	}

	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, status, ErrorResponse{
		Message: message,
		Status:  status,
		Time:    time.Now().UTC(),
	})
}

// WriteValidationError writes a 400 error envelope for a failed
// request-body validation.
func WriteValidationError(w http.ResponseWriter, err error) {
	message := err.Error()
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		message = valErr.Error()
	}

	WriteJSON(w, http.StatusBadRequest, ErrorResponse{
		Message: message,
		Status:  http.StatusBadRequest,
		Time:    time.Now().UTC(),
	})
}
