package httpcache

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/orgdesk/internal/hashx"
)

const (
	HeaderCache    = "X-Cache"
	HeaderCacheKey = "X-Cache-Key"
	HeaderCacheAge = "X-Cache-Age"
)

// Headers owned by the cache layer; they are never replayed from an entry.
var skipReplay = map[string]struct{}{
	HeaderCache:         {},
	HeaderCacheKey:      {},
	HeaderCacheAge:      {},
	"Etag":              {},
	"Cache-Control":     {},
	"Content-Length":    {},
	"Date":              {},
	"Set-Cookie":        {},
	"Connection":        {},
	"Transfer-Encoding": {},
}

// Scope selects which tenants an Invalidator clears.
type Scope int

const (
	// TenantScope clears entries of the caller's tenant only.
	TenantScope Scope = iota
	// GlobalScope clears entries of every tenant, for resources all tenants
	// can read.
	GlobalScope
)

// Middleware serves GET requests from the cache and stores successful
// responses of the wrapped handler. Other methods pass through untouched.
func (c *Cache) Middleware(policy Policy) func(http.Handler) http.Handler {
	cacheControl := policy.String()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			rawURL := r.URL.RequestURI()
			tenantID := normalizeTenant(c.tenant(r))
			key := Key(r.Method, rawURL, tenantID)

			if e, ok := c.Lookup(r.Method, rawURL, tenantID); ok {
				h := w.Header()
				for k, vv := range e.Header {
					if _, skip := skipReplay[http.CanonicalHeaderKey(k)]; skip {
						continue
					}
					h[k] = append([]string(nil), vv...)
				}
				h.Set(HeaderCache, "HIT")
				h.Set(HeaderCacheKey, key)
				h.Set(HeaderCacheAge, strconv.FormatInt(int64(e.Age(c.now()).Seconds()), 10))
				h.Set("ETag", e.ETag)
				h.Set("Cache-Control", cacheControl)

				if etagMatches(r.Header.Get("If-None-Match"), e.ETag) {
					w.WriteHeader(http.StatusNotModified)
					return
				}
				w.WriteHeader(e.StatusCode)
				_, _ = w.Write(e.Body)
				return
			}

			mark := c.Mark()
			rec := newRecorder()
			next.ServeHTTP(rec, r)

			h := w.Header()
			h.Set(HeaderCache, "MISS")
			h.Set(HeaderCacheKey, key)

			if !rec.ok() {
				rec.flush(w)
				return
			}

			body := rec.body.Bytes()
			resp := Response{StatusCode: rec.statusCode(), Header: storableHeader(rec.header), Body: body}
			etag := ""
			if e, err := c.StoreAfter(mark, r.Method, rawURL, tenantID, resp); err != nil {
				c.log.Debug(r.Context(), "response not cached", "key", key, "error", err)
				etag = hashx.ETag(body)
			} else {
				etag = e.ETag
			}

			h.Set("ETag", etag)
			h.Set("Cache-Control", cacheControl)

			if etagMatches(r.Header.Get("If-None-Match"), etag) {
				copyHeader(h, rec.header)
				h.Del("Content-Length")
				w.WriteHeader(http.StatusNotModified)
				return
			}
			rec.flush(w)
		})
	}
}

// Invalidator wraps a mutating handler. When it answers 2xx, entries of
// entityType are dropped before the response is released to the client.
func (c *Cache) Invalidator(entityType string, s Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			rec := newRecorder()
			next.ServeHTTP(rec, r)

			if rec.ok() {
				tenantID := ""
				if s == TenantScope {
					tenantID = normalizeTenant(c.tenant(r))
				}
				n := c.Invalidate(entityType, tenantID)
				c.log.Debug(r.Context(), "cache invalidated", "entity_type", entityType, "tenant", tenantID, "removed", n)
			}
			rec.flush(w)
		})
	}
}

func storableHeader(h http.Header) http.Header {
	out := http.Header{}
	for k, vv := range h {
		if _, skip := skipReplay[http.CanonicalHeaderKey(k)]; skip {
			continue
		}
		out[k] = append([]string(nil), vv...)
	}
	return out
}

// etagMatches implements the If-None-Match comparison: a list of tags or
// "*", with weak tags compared by their opaque value.
func etagMatches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" || etag == "" {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.TrimPrefix(candidate, "W/") == strings.TrimPrefix(etag, "W/") {
			return true
		}
	}
	return false
}
