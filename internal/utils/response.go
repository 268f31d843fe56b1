package utils

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"qbeAdmin/internal/models"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// RespondWithError sends a standardized JSON error response
func RespondWithError(w http.ResponseWriter, r *http.Request, code int, message string) {
	zerolog.Ctx(r.Context()).Info().
		Int("code", code).
		Str("path", r.URL.Path).
		Msg("API error: " + message)

	RespondWithJSON(w, r, code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, r *http.Request, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func AuthenticationError(w http.ResponseWriter, r *http.Request) {
	RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
}

func AuthorizationError(w http.ResponseWriter, r *http.Request) {
	RespondWithError(w, r, http.StatusForbidden, "Insufficient permissions")
}

func BadRequestError(w http.ResponseWriter, r *http.Request, message string) {
	RespondWithError(w, r, http.StatusBadRequest, message)
}

func NotFoundError(w http.ResponseWriter, r *http.Request, resource string) {
	RespondWithError(w, r, http.StatusNotFound, resource+" not found")
}

func InternalServerError(w http.ResponseWriter, r *http.Request, message string) {
	RespondWithError(w, r, http.StatusInternalServerError, message)
}

func ValidationError(w http.ResponseWriter, r *http.Request, message string) {
	RespondWithError(w, r, http.StatusBadRequest, "Validation failed: "+message)
}

// RequireAuthentication returns the request user or answers 401
func RequireAuthentication(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := GetUser(r)
	if !ok {
		AuthenticationError(w, r)
		return nil, false
	}
	return user, true
}
