// Package httpcache is an in-process response cache for GET endpoints.
//
// Entries are keyed by (method, URL, tenant), bounded by an LRU with a fixed
// TTL, and removed per entity type when a mutation of that type succeeds.
package httpcache

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/orgdesk/internal/common"
	"github.com/dmitrijs2005/orgdesk/internal/hashx"
	"github.com/dmitrijs2005/orgdesk/internal/logging"
	"github.com/dmitrijs2005/orgdesk/internal/metrics"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultMaxEntries = 500
	DefaultTTL        = 10 * time.Minute
)

var (
	// ErrNotCacheable is returned by Store for non-2xx responses.
	ErrNotCacheable = errors.New("response is not cacheable")
	// ErrStaleWrite is returned by StoreAfter when an invalidation covering
	// the entry happened after the mark was taken.
	ErrStaleWrite = errors.New("response was invalidated while being produced")
	ErrClosed     = errors.New("cache is closed")
)

var defaultEntityTypes = []string{"users", "organizations", "orders"}

// Entry is one cached response.
type Entry struct {
	Key        string
	Body       []byte
	StatusCode int
	Header     http.Header
	EntityType string
	TenantID   string
	Timestamp  time.Time
	ETag       string
}

// Age is the time since the entry was stored.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// Response is what a handler produced for a request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Mark is a point in the cache's invalidation history.
type Mark uint64

// Stats is a snapshot of cache counters.
type Stats struct {
	Size          int    `json:"size"`
	MaxSize       int    `json:"maxSize"`
	TTL           int64  `json:"ttl"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Stores        uint64 `json:"stores"`
	Invalidations uint64 `json:"invalidations"`
}

// TenantStats is the part of Stats one tenant may see.
type TenantStats struct {
	TenantID string `json:"tenantId"`
	Size     int    `json:"size"`
	MaxSize  int    `json:"maxSize"`
	TTL      int64  `json:"ttl"`
}

// TenantFunc resolves the tenant of a request. An empty result means
// anonymous.
type TenantFunc func(r *http.Request) string

type scope struct {
	entityType string
	tenantID   string // "" covers every tenant
}

type Cache struct {
	lru         *expirable.LRU[string, *Entry]
	maxSize     int
	ttl         time.Duration
	entityTypes map[string]struct{}
	tenant      TenantFunc
	now         func() time.Time
	log         logging.Logger

	// mu orders stores against invalidations; it never covers I/O.
	mu          sync.Mutex
	seq         uint64
	invalidated map[scope]uint64
	clearedAt   uint64
	closed      bool

	hits, misses, stores, invalidations atomic.Uint64
}

type Option func(*Cache)

// WithEntityTypes replaces the recognised entity types.
func WithEntityTypes(types ...string) Option {
	return func(c *Cache) {
		c.entityTypes = make(map[string]struct{}, len(types))
		for _, t := range types {
			c.entityTypes[t] = struct{}{}
		}
	}
}

func WithTenantFunc(f TenantFunc) Option {
	return func(c *Cache) { c.tenant = f }
}

func WithLogger(l logging.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// WithClock replaces time.Now for entry timestamps and age checks.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache holding at most maxSize entries for ttl each.
// Non-positive arguments select the defaults.
func New(maxSize int, ttl time.Duration, opts ...Option) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Cache{
		lru:         expirable.NewLRU[string, *Entry](maxSize, nil, ttl),
		maxSize:     maxSize,
		ttl:         ttl,
		tenant:      func(*http.Request) string { return common.AnonymousTenant },
		now:         time.Now,
		log:         logging.Discard(),
		invalidated: make(map[scope]uint64),
	}
	WithEntityTypes(defaultEntityTypes...)(c)
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With("module", "httpcache")
	return c
}

// Key derives the cache key of a request. Tenants never share keys.
func Key(method, rawURL, tenantID string) string {
	return hashx.Key(method, rawURL, normalizeTenant(tenantID))
}

func normalizeTenant(tenantID string) string {
	if tenantID == "" {
		return common.AnonymousTenant
	}
	return tenantID
}

// EntityType classifies rawURL by the first path segment after /api/.
// Unknown segments yield "".
func (c *Cache) EntityType(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	rest, ok := strings.CutPrefix(path, "/api/")
	if !ok {
		return ""
	}
	segment, _, _ := strings.Cut(rest, "/")
	if _, known := c.entityTypes[segment]; known {
		return segment
	}
	return ""
}

// Lookup returns a live entry. Expired entries are dropped and reported as a
// miss.
func (c *Cache) Lookup(method, rawURL, tenantID string) (*Entry, bool) {
	key := Key(method, rawURL, tenantID)
	e, ok := c.lru.Get(key)
	if ok && c.now().Sub(e.Timestamp) >= c.ttl {
		c.lru.Remove(key)
		ok = false
	}
	if !ok {
		c.misses.Add(1)
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	c.hits.Add(1)
	metrics.CacheHitsTotal.Inc()
	return e, true
}

// Mark returns the current invalidation position for use with StoreAfter.
func (c *Cache) Mark() Mark {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Mark(c.seq)
}

// StoreAfter caches a 2xx response unless its entity type was invalidated
// for this tenant (or for all tenants) after mark. Responses are only ever
// stored through it so a write racing a mutation is dropped.
func (c *Cache) StoreAfter(mark Mark, method, rawURL, tenantID string, resp Response) (*Entry, error) {
	return c.store(&mark, method, rawURL, tenantID, resp)
}

func (c *Cache) store(mark *Mark, method, rawURL, tenantID string, resp Response) (*Entry, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.CacheRejectedStoresTotal.WithLabelValues("status").Inc()
		return nil, ErrNotCacheable
	}

	tenantID = normalizeTenant(tenantID)
	e := &Entry{
		Key:        Key(method, rawURL, tenantID),
		Body:       append([]byte(nil), resp.Body...),
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		EntityType: c.EntityType(rawURL),
		TenantID:   tenantID,
		Timestamp:  c.now(),
		ETag:       hashx.ETag(resp.Body),
	}
	if e.Header == nil {
		e.Header = http.Header{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if mark != nil && c.staleLocked(uint64(*mark), e.EntityType, tenantID) {
		metrics.CacheRejectedStoresTotal.WithLabelValues("stale").Inc()
		return nil, ErrStaleWrite
	}

	c.lru.Add(e.Key, e)
	c.stores.Add(1)
	metrics.CacheStoresTotal.Inc()
	metrics.CacheEntries.Set(float64(c.lru.Len()))
	return e, nil
}

func (c *Cache) staleLocked(mark uint64, entityType, tenantID string) bool {
	if c.clearedAt > mark {
		return true
	}
	return c.invalidated[scope{entityType, tenantID}] > mark ||
		c.invalidated[scope{entityType, ""}] > mark
}

// Invalidate removes every entry of entityType belonging to tenantID, or to
// any tenant when tenantID is "". It returns the number of entries removed.
func (c *Cache) Invalidate(entityType, tenantID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.invalidated[scope{entityType, tenantID}] = c.seq

	removed := 0
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if e.EntityType != entityType {
			continue
		}
		if tenantID != "" && e.TenantID != tenantID {
			continue
		}
		if c.lru.Remove(key) {
			removed++
		}
	}

	c.invalidations.Add(1)
	metrics.CacheInvalidatedTotal.WithLabelValues(entityType).Add(float64(removed))
	metrics.CacheEntries.Set(float64(c.lru.Len()))
	return removed
}

// Clear drops every entry. Responses produced before the call are not
// stored afterwards via StoreAfter.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.clearedAt = c.seq
	c.lru.Purge()
	metrics.CacheEntries.Set(0)
}

// ClearTenant drops every entry of tenantID and returns how many were
// removed. Responses produced for that tenant before the call are not stored
// afterwards via StoreAfter.
func (c *Cache) ClearTenant(tenantID string) int {
	tenantID = normalizeTenant(tenantID)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.invalidated[scope{"", tenantID}] = c.seq
	for t := range c.entityTypes {
		c.invalidated[scope{t, tenantID}] = c.seq
	}

	removed := 0
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok || e.TenantID != tenantID {
			continue
		}
		if c.lru.Remove(key) {
			removed++
		}
	}

	c.invalidations.Add(1)
	metrics.CacheEntries.Set(float64(c.lru.Len()))
	return removed
}

// Close clears the cache and rejects further stores.
func (c *Cache) Close() {
	c.Clear()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Closed reports whether Close has been called.
func (c *Cache) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Cache) Len() int {
	return c.lru.Len()
}

func (c *Cache) TTL() time.Duration {
	return c.ttl
}

func (c *Cache) Stats() Stats {
	return Stats{
		Size:          c.lru.Len(),
		MaxSize:       c.maxSize,
		TTL:           c.ttl.Milliseconds(),
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Stores:        c.stores.Load(),
		Invalidations: c.invalidations.Load(),
	}
}

func (c *Cache) TenantStats(tenantID string) TenantStats {
	tenantID = normalizeTenant(tenantID)

	c.mu.Lock()
	defer c.mu.Unlock()

	size := 0
	for _, key := range c.lru.Keys() {
		if e, ok := c.lru.Peek(key); ok && e.TenantID == tenantID {
			size++
		}
	}
	return TenantStats{
		TenantID: tenantID,
		Size:     size,
		MaxSize:  c.maxSize,
		TTL:      c.ttl.Milliseconds(),
	}
}
