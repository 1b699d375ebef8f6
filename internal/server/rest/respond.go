package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/orgdesk/internal/common"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps service errors to HTTP statuses. notFound is the
// message used for a 404.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, common.ErrMissingToken):
		respondError(w, http.StatusBadRequest, "Refresh token is required")
	case errors.Is(err, common.ErrOrganizationNotFound):
		respondError(w, http.StatusBadRequest, "Organization does not exist")
	case errors.Is(err, common.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, common.ErrInvalidOrExpiredRefreshToken):
		respondError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
	case errors.Is(err, common.ErrUserNotFound):
		respondError(w, http.StatusUnauthorized, "User not found")
	case errors.Is(err, common.ErrRefreshTokenRevoked):
		respondError(w, http.StatusUnauthorized, "Refresh token has been revoked. Please log in again.")
	case errors.Is(err, common.ErrInvalidToken):
		respondError(w, http.StatusUnauthorized, "Invalid or expired token")
	case errors.Is(err, common.ErrorNotFound):
		respondError(w, http.StatusNotFound, notFound)
	case errors.Is(err, common.ErrorAlreadyExists):
		respondError(w, http.StatusConflict, "Resource already exists")
	default:
		s.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeJSON reads the request body into dst and validates it. It writes the
// 400 response itself and reports whether the handler may continue.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	if fields := s.validator.validate(dst); fields != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Validation failed",
			"details": fields,
		})
		return false
	}
	return true
}
