// Package handlers implements the coordinator's three HTTP endpoints.
package handlers

import (
	"encoding/json"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/larachado/coordinator/api"
	"github.com/larachado/coordinator/internal/apperr"
)

// WriteJSON writes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already flushed; nothing left to do but drop it.
		return
	}
}

// WriteSuccess writes a {"status":"success","data":...} envelope.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, api.Envelope{Status: "success", Data: data})
}

// WriteError writes a {"status":"error","data":{"message":...}} envelope,
// mapping the error's Kind to an HTTP status via its own HTTPStatus field.
func WriteError(w http.ResponseWriter, err *apperr.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	if logger != nil {
		logger.Error("API error",
			zap.String("kind", string(err.Kind)),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.Bool("retryable", err.Retryable),
			zap.Error(err.Cause),
		)
	}

	WriteJSON(w, status, api.Envelope{
		Status: "error",
		Data:   api.ErrorData{Message: err.Message},
	})
}

// DecodeJSONBody decodes a JSON request body, rejecting unknown fields and
// bodies over 1 MB. On failure it writes the error response itself.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil {
		err := apperr.New(apperr.LogicError, "request body is empty").WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, err, logger)
		return err
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		apiErr := apperr.New(apperr.LogicError, "invalid JSON body").
			WithCause(err).WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, apiErr, logger)
		return apiErr
	}

	return nil
}

// ValidateContentType requires an application/json Content-Type header,
// tolerating case variants and parameters like "; charset=UTF-8".
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		apiErr := apperr.New(apperr.LogicError, "Content-Type must be application/json").WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, apiErr, logger)
		return false
	}
	return true
}
