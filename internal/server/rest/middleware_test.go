package rest

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireAuth(t *testing.T) {
	f := newFixture(t, Config{})

	cases := []struct {
		name   string
		header string
		status int
		msg    string
	}{
		{"no header", "", http.StatusUnauthorized, "Access token required"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "Access token required"},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, "Access token required"},
		{"bad token", "Bearer garbage", http.StatusUnauthorized, "Invalid or expired token"},
		{"lowercase scheme", "bearer token-acme", http.StatusOK, ""},
		{"valid", "Bearer token-acme", http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/organizations", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			f.handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.msg != "" {
				assert.Equal(t, tc.msg, decode(t, rec)["error"])
			}
		})
	}
}

func TestRequireAuth_StoresClaims(t *testing.T) {
	f := newFixture(t, Config{})

	var tenant string
	h := f.server.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant = TenantFromRequest(r)
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "user-globex", claims.UserID)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer token-globex")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "globex", tenant)
}

func TestTenantFromRequest_Anonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	assert.Empty(t, TenantFromRequest(req))

	_, ok := ClaimsFromContext(req.Context())
	assert.False(t, ok)
}

func TestStatusWriter_DefaultsToOK(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}
	_, _ = sw.Write([]byte("x"))
	sw.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusOK, sw.status)
}

func TestLogRequests_RequestID(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.call(t, http.MethodGet, "/health", "", nil)
	id := rec.Header().Get(requestIDHeader)
	assert.Len(t, id, 16, "generated id is 8 random bytes in hex")

	rec = f.call(t, http.MethodGet, "/health", "", nil, requestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}
