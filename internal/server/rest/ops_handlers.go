package rest

import (
	"context"
	"net/http"
	"time"
)

const readyTimeout = 2 * time.Second

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
		"service":   serviceName,
	})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]bool{
		"database": false,
		"cache":    !s.cache.Closed(),
	}

	var dbErr error
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		dbErr = s.db.PingContext(ctx)
		cancel()
		checks["database"] = dbErr == nil
	}

	body := map[string]any{
		"status":    "ready",
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
		"checks":    checks,
	}
	if checks["database"] && checks["cache"] {
		respondJSON(w, http.StatusOK, body)
		return
	}

	body["status"] = "not ready"
	if dbErr != nil {
		s.logger.Warn(r.Context(), "readiness check failed", "error", dbErr)
		body["error"] = dbErr.Error()
	}
	respondJSON(w, http.StatusServiceUnavailable, body)
}

// cacheStats and clearCache only see the caller's organization.
func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.cache.TenantStats(TenantFromRequest(r)))
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromRequest(r)
	n := s.cache.ClearTenant(tenant)
	s.logger.Info(r.Context(), "response cache cleared", "organization_id", tenant, "removed", n)
	respondJSON(w, http.StatusOK, map[string]any{"message": "Cache cleared successfully", "removed": n})
}
