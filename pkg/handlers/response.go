package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-recon/pkg/logging"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// ApiResponse is the envelope for successful JSON responses.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// StatusForError maps an error kind to an HTTP status and error code.
func StatusForError(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "unsupported_format"
	case errors.Is(err, apperrors.ErrMissingDataset):
		return http.StatusUnprocessableEntity, "missing_dataset"
	case errors.Is(err, apperrors.ErrInsufficientData):
		return http.StatusUnprocessableEntity, "insufficient_data"
	case errors.Is(err, apperrors.ErrGeneration):
		return http.StatusBadGateway, "generation_failed"
	case errors.Is(err, apperrors.ErrQueryExecution):
		return http.StatusBadGateway, "query_failed"
	case errors.Is(err, apperrors.ErrStorageAccess):
		return http.StatusBadGateway, "storage_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeServiceError renders err as a user-facing error. Known kinds carry
// their own message; anything else is logged and reported generically.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, action string, err error) {
	status, code := StatusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error(action+" failed", zap.String("error", logging.SanitizeError(err)))
		message = action + " failed"
	} else {
		logger.Warn(action+" failed",
			zap.String("code", code),
			zap.String("error", logging.SanitizeError(err)))
	}
	if werr := ErrorResponse(w, status, code, message); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}

// decodeJSON reads a JSON body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); werr != nil {
			logger.Error("Failed to write error response", zap.Error(werr))
		}
		return false
	}
	return true
}

func writeOK(w http.ResponseWriter, logger *zap.Logger, data any) {
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

func badRequest(w http.ResponseWriter, logger *zap.Logger, code, message string) {
	if err := ErrorResponse(w, http.StatusBadRequest, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
