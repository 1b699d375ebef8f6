// Package rest exposes orgdesk over HTTP/JSON: the auth endpoints, the
// protected resource API with its response cache, and the operational
// endpoints (health, readiness, metrics).
package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/orgdesk/internal/logging"
	"github.com/dmitrijs2005/orgdesk/internal/server/auth"
	"github.com/dmitrijs2005/orgdesk/internal/server/httpcache"
	"github.com/dmitrijs2005/orgdesk/internal/server/models"
	"github.com/dmitrijs2005/orgdesk/internal/server/services"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
	serviceName     = "orgdesk"
)

// Authenticator is the auth surface the handlers need.
type Authenticator interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	VerifyAccessToken(token string) (*auth.AccessClaims, error)
}

type UserService interface {
	List(ctx context.Context, organizationID string) ([]models.User, error)
	Get(ctx context.Context, organizationID, id string) (*models.User, error)
	Update(ctx context.Context, user *models.User) (*models.User, error)
	Delete(ctx context.Context, organizationID, id string) error
}

type OrganizationService interface {
	List(ctx context.Context) ([]models.Organization, error)
	Get(ctx context.Context, id string) (*models.Organization, error)
	Create(ctx context.Context, org *models.Organization) (*models.Organization, error)
	Update(ctx context.Context, org *models.Organization) error
	Delete(ctx context.Context, id string) error
}

type OrderService interface {
	List(ctx context.Context, organizationID string) ([]models.Order, error)
	Get(ctx context.Context, organizationID, id string) (*models.Order, error)
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	Update(ctx context.Context, order *models.Order) (*models.Order, error)
	Delete(ctx context.Context, organizationID, id string) error
}

// Pinger reports database reachability for /ready.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Config holds the transport settings of the server.
type Config struct {
	Address            string
	CORSOrigins        []string
	RateLimitPerMinute int
	CacheMaxAge        time.Duration
}

// Services bundles the dependencies the handlers call into.
type Services struct {
	Auth          Authenticator
	Users         UserService
	Organizations OrganizationService
	Orders        OrderService
	Cache         *httpcache.Cache
	DB            Pinger
}

type Server struct {
	address     string
	corsOrigins []string
	cacheMaxAge time.Duration
	logger      logging.Logger

	auth          Authenticator
	users         UserService
	organizations OrganizationService
	orders        OrderService
	cache         *httpcache.Cache
	db            Pinger

	limiter   *orgRateLimiter
	validator *requestValidator
	now       func() time.Time
}

func NewServer(cfg Config, l logging.Logger, svc Services) (*Server, error) {
	if svc.Auth == nil || svc.Users == nil || svc.Organizations == nil || svc.Orders == nil {
		return nil, errors.New("rest: all services are required")
	}
	if svc.Cache == nil {
		return nil, errors.New("rest: response cache is required")
	}

	return &Server{
		address:       cfg.Address,
		corsOrigins:   cfg.CORSOrigins,
		cacheMaxAge:   cfg.CacheMaxAge,
		logger:        l.With("module", "rest_server"),
		auth:          svc.Auth,
		users:         svc.Users,
		organizations: svc.Organizations,
		orders:        svc.Orders,
		cache:         svc.Cache,
		db:            svc.DB,
		limiter:       newOrgRateLimiter(cfg.RateLimitPerMinute),
		validator:     newRequestValidator(),
		now:           time.Now,
	}, nil
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "Route not found")
	})
	r.Use(s.logRequests)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.ready).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	a := r.PathPrefix("/auth").Subrouter()
	a.HandleFunc("/register", s.register).Methods(http.MethodPost)
	a.HandleFunc("/login", s.login).Methods(http.MethodPost)
	a.HandleFunc("/refresh", s.refresh).Methods(http.MethodPost)
	a.HandleFunc("/logout", s.logout).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireAuth)

	cached := s.cache.Middleware(httpcache.PrivateMaxAge(s.cacheMaxAge))
	revalidated := s.cache.Middleware(httpcache.Revalidate())

	invalidateUsers := s.cache.Invalidator("users", httpcache.TenantScope)
	api.Handle("/users", cached(http.HandlerFunc(s.listUsers))).Methods(http.MethodGet)
	api.Handle("/users/{id}", cached(http.HandlerFunc(s.getUser))).Methods(http.MethodGet)
	api.Handle("/users/{id}", invalidateUsers(http.HandlerFunc(s.updateUser))).Methods(http.MethodPut)
	api.Handle("/users/{id}", invalidateUsers(http.HandlerFunc(s.deleteUser))).Methods(http.MethodDelete)

	// Every tenant reads the same organization list.
	invalidateOrgs := s.cache.Invalidator("organizations", httpcache.GlobalScope)
	api.Handle("/organizations", cached(http.HandlerFunc(s.listOrganizations))).Methods(http.MethodGet)
	api.Handle("/organizations/{id}", cached(http.HandlerFunc(s.getOrganization))).Methods(http.MethodGet)
	api.Handle("/organizations", invalidateOrgs(http.HandlerFunc(s.createOrganization))).Methods(http.MethodPost)
	api.Handle("/organizations/{id}", invalidateOrgs(http.HandlerFunc(s.updateOrganization))).Methods(http.MethodPut)
	api.Handle("/organizations/{id}", invalidateOrgs(http.HandlerFunc(s.deleteOrganization))).Methods(http.MethodDelete)

	limited := s.limiter.Middleware
	invalidateOrders := s.cache.Invalidator("orders", httpcache.TenantScope)
	api.Handle("/orders", limited(revalidated(http.HandlerFunc(s.listOrders)))).Methods(http.MethodGet)
	api.Handle("/orders/{id}", limited(revalidated(http.HandlerFunc(s.getOrder)))).Methods(http.MethodGet)
	api.Handle("/orders", limited(invalidateOrders(http.HandlerFunc(s.createOrder)))).Methods(http.MethodPost)
	api.Handle("/orders/{id}", limited(invalidateOrders(http.HandlerFunc(s.updateOrder)))).Methods(http.MethodPut)
	api.Handle("/orders/{id}", limited(invalidateOrders(http.HandlerFunc(s.deleteOrder)))).Methods(http.MethodDelete)

	api.HandleFunc("/cache/stats", s.cacheStats).Methods(http.MethodGet)
	api.HandleFunc("/cache", s.clearCache).Methods(http.MethodDelete)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "If-None-Match"},
		ExposedHeaders:   []string{"ETag", httpcache.HeaderCache, httpcache.HeaderCacheKey, httpcache.HeaderCacheAge, "Retry-After"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

func (s *Server) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		stopped <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return <-stopped
}
