// Package hashx holds the hashing helpers shared by the token authority and
// the response cache: request-identity keys, entity tags and token digests.
package hashx

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Key derives a deterministic, collision-resistant key from parts. Parts are
// length-prefixed before hashing so that ("a:b", "c") and ("a", "b:c") never
// produce the same key.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strconv.Itoa(len(p))))
		h.Write([]byte{':'})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ETag returns a strong, quoted entity tag for body.
func ETag(body []byte) string {
	var b strings.Builder
	b.Grow(18)
	b.WriteByte('"')
	b.WriteString(strconv.FormatUint(xxhash.Sum64(body), 16))
	b.WriteByte('"')
	return b.String()
}

// TokenHash is the one-way digest persisted in place of a raw token.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
