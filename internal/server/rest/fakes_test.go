package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/orgdesk/internal/common"
	"github.com/dmitrijs2005/orgdesk/internal/logging"
	"github.com/dmitrijs2005/orgdesk/internal/server/auth"
	"github.com/dmitrijs2005/orgdesk/internal/server/httpcache"
	"github.com/dmitrijs2005/orgdesk/internal/server/models"
	"github.com/dmitrijs2005/orgdesk/internal/server/services"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

// fakeAuth accepts access tokens of the form "token-<org>" and returns the
// configured results for everything else.
type fakeAuth struct {
	registerRes *services.AuthResult
	registerErr error
	loginRes    *services.AuthResult
	loginErr    error
	refreshRes  *services.TokenPair
	refreshErr  error
	logoutErr   error

	lastRegister services.RegisterInput
	lastRefresh  string
	logouts      atomic.Int32
}

func (f *fakeAuth) Register(_ context.Context, in services.RegisterInput) (*services.AuthResult, error) {
	f.lastRegister = in
	return f.registerRes, f.registerErr
}

func (f *fakeAuth) Login(context.Context, string, string) (*services.AuthResult, error) {
	return f.loginRes, f.loginErr
}

func (f *fakeAuth) Refresh(_ context.Context, token string) (*services.TokenPair, error) {
	f.lastRefresh = token
	if token == "" {
		return nil, common.ErrMissingToken
	}
	return f.refreshRes, f.refreshErr
}

func (f *fakeAuth) Logout(_ context.Context, token string) error {
	f.logouts.Add(1)
	if token == "" {
		return common.ErrMissingToken
	}
	return f.logoutErr
}

func (f *fakeAuth) VerifyAccessToken(token string) (*auth.AccessClaims, error) {
	org, ok := strings.CutPrefix(token, "token-")
	if !ok || org == "" {
		return nil, common.ErrInvalidToken
	}
	return &auth.AccessClaims{UserID: "user-" + org, Email: org + "@example.com", OrganizationID: org}, nil
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]models.User
	lists atomic.Int32
}

func newFakeUsers(users ...models.User) *fakeUsers {
	f := &fakeUsers{users: map[string]models.User{}}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) List(_ context.Context, org string) ([]models.User, error) {
	f.lists.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.User
	for _, u := range f.users {
		if u.OrganizationID == org {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeUsers) Get(_ context.Context, org, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || u.OrganizationID != org {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (f *fakeUsers) Update(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.users[u.ID]
	if !ok || existing.OrganizationID != u.OrganizationID {
		return nil, common.ErrorNotFound
	}
	for id, other := range f.users {
		if id != u.ID && u.Email != "" && other.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	f.users[u.ID] = *u
	return u, nil
}

func (f *fakeUsers) Delete(_ context.Context, org, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || u.OrganizationID != org {
		return common.ErrorNotFound
	}
	delete(f.users, id)
	return nil
}

type fakeOrgs struct {
	mu    sync.Mutex
	orgs  map[string]models.Organization
	lists atomic.Int32
	err   error
}

func newFakeOrgs(names ...string) *fakeOrgs {
	f := &fakeOrgs{orgs: map[string]models.Organization{}}
	for _, n := range names {
		f.orgs[n] = models.Organization{ID: n, Name: n}
	}
	return f
}

func (f *fakeOrgs) List(context.Context) ([]models.Organization, error) {
	f.lists.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Organization, 0, len(f.orgs))
	for _, o := range f.orgs {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeOrgs) Get(_ context.Context, id string) (*models.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orgs[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &o, nil
}

func (f *fakeOrgs) Create(_ context.Context, org *models.Organization) (*models.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orgs {
		if o.Name == org.Name {
			return nil, common.ErrorAlreadyExists
		}
	}
	out := *org
	out.ID = org.Name
	f.orgs[out.ID] = out
	return &out, nil
}

func (f *fakeOrgs) Update(_ context.Context, org *models.Organization) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orgs[org.ID]; !ok {
		return common.ErrorNotFound
	}
	f.orgs[org.ID] = *org
	return nil
}

func (f *fakeOrgs) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orgs[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.orgs, id)
	return nil
}

type fakeOrders struct {
	mu     sync.Mutex
	orders map[string]models.Order
	next   int
	lists  atomic.Int32
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: map[string]models.Order{}}
}

func (f *fakeOrders) List(_ context.Context, org string) ([]models.Order, error) {
	f.lists.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.OrganizationID == org {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeOrders) Get(_ context.Context, org, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.OrganizationID != org {
		return nil, common.ErrorNotFound
	}
	return &o, nil
}

func (f *fakeOrders) Create(_ context.Context, order *models.Order) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	out := *order
	out.ID = "order-" + strconv.Itoa(100+f.next)
	f.orders[out.ID] = out
	return &out, nil
}

func (f *fakeOrders) Update(_ context.Context, order *models.Order) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[order.ID]
	if !ok || o.OrganizationID != order.OrganizationID {
		return nil, common.ErrorNotFound
	}
	o.TotalAmount = order.TotalAmount
	f.orders[o.ID] = o
	return &o, nil
}

func (f *fakeOrders) Delete(_ context.Context, org, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.OrganizationID != org {
		return common.ErrorNotFound
	}
	delete(f.orders, id)
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

var errBoom = errors.New("boom")

type fixture struct {
	auth    *fakeAuth
	users   *fakeUsers
	orgs    *fakeOrgs
	orders  *fakeOrders
	cache   *httpcache.Cache
	server  *Server
	handler http.Handler
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		auth:   &fakeAuth{},
		users:  newFakeUsers(),
		orgs:   newFakeOrgs("acme", "globex"),
		orders: newFakeOrders(),
		cache:  httpcache.New(100, time.Minute, httpcache.WithTenantFunc(TenantFromRequest)),
	}
	if cfg.CacheMaxAge == 0 {
		cfg.CacheMaxAge = 10 * time.Minute
	}
	srv, err := NewServer(cfg, nopLogger{}, Services{
		Auth:          f.auth,
		Users:         f.users,
		Organizations: f.orgs,
		Orders:        f.orders,
		Cache:         f.cache,
		DB:            fakePinger{},
	})
	require.NoError(t, err)
	srv.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	f.server = srv
	f.handler = srv.Handler()
	return f
}

// call issues a request; org selects the bearer token, "" sends none.
func (f *fixture) call(t *testing.T, method, target, org string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if org != "" {
		req.Header.Set("Authorization", "Bearer token-"+org)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
