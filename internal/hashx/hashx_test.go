package hashx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_Deterministic(t *testing.T) {
	a := Key("GET", "/api/users?page=1", "org-a")
	b := Key("GET", "/api/users?page=1", "org-a")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestKey_DiffersPerTenant(t *testing.T) {
	assert.NotEqual(t,
		Key("GET", "/api/users?page=1", "org-a"),
		Key("GET", "/api/users?page=1", "org-b"))
}

func TestKey_NoSeparatorAmbiguity(t *testing.T) {
	assert.NotEqual(t, Key("a:b", "c"), Key("a", "b:c"))
	assert.NotEqual(t, Key("ab", ""), Key("a", "b"))
}

func TestETag(t *testing.T) {
	e1 := ETag([]byte(`{"orders":[]}`))
	e2 := ETag([]byte(`{"orders":[]}`))
	e3 := ETag([]byte(`{"orders":[1]}`))

	assert.Equal(t, e1, e2)
	assert.NotEqual(t, e1, e3)
	assert.True(t, strings.HasPrefix(e1, `"`) && strings.HasSuffix(e1, `"`))
}

func TestTokenHash(t *testing.T) {
	h := TokenHash("header.payload.sig")
	assert.Len(t, h, 64)
	assert.Equal(t, h, TokenHash("header.payload.sig"))
	assert.NotEqual(t, h, TokenHash("header.payload.sig2"))
	assert.NotContains(t, h, "payload")
}
