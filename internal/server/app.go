// Package server wires configuration, storage, services and the HTTP
// transport together and runs them until the process is signalled.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/orgdesk/internal/logging"
	"github.com/dmitrijs2005/orgdesk/internal/server/auth"
	"github.com/dmitrijs2005/orgdesk/internal/server/config"
	"github.com/dmitrijs2005/orgdesk/internal/server/httpcache"
	"github.com/dmitrijs2005/orgdesk/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/orgdesk/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/orgdesk/internal/server/rest"
	"github.com/dmitrijs2005/orgdesk/internal/server/services"
	"github.com/redis/go-redis/v9"
)

const issuer = "orgdesk"

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	redis  *redis.Client
	cache  *httpcache.Cache
	server *rest.Server
}

// dependencies are swapped in tests.
var (
	openDB         = repomanager.Open
	newRepoManager = repomanager.NewPostgresRepositoryManager
)

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := openDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}
	if err := app.wire(ctx); err != nil {
		app.close(ctx)
		return nil, err
	}
	return app, nil
}

func (app *App) wire(ctx context.Context) error {
	c := app.config

	m := newRepoManager()
	if err := m.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	store, err := app.tokenStore(ctx)
	if err != nil {
		return err
	}

	authority, err := auth.NewAuthority(auth.Config{
		AccessSecret:  []byte(c.AccessTokenSecret),
		RefreshSecret: []byte(c.RefreshTokenSecret),
		AccessTTL:     c.AccessTokenTTL,
		RefreshTTL:    c.RefreshTokenTTL,
		Leeway:        c.TokenLeeway,
		Issuer:        issuer,
	})
	if err != nil {
		return fmt.Errorf("auth init error: %w", err)
	}

	app.cache = httpcache.New(c.CacheMaxEntries, c.CacheTTL,
		httpcache.WithTenantFunc(rest.TenantFromRequest),
		httpcache.WithLogger(app.logger.With("module", "httpcache")),
	)

	app.server, err = rest.NewServer(rest.Config{
		Address:            c.HTTPAddr,
		CORSOrigins:        c.CORSOrigins,
		RateLimitPerMinute: c.RateLimitPerMinute,
		CacheMaxAge:        c.CacheMaxAge,
	}, app.logger, rest.Services{
		Auth:          services.NewAuthService(app.db, m, store, authority, c.BcryptCost, app.logger),
		Users:         services.NewUserService(app.db, m),
		Organizations: services.NewOrganizationService(app.db, m),
		Orders:        services.NewOrderService(app.db, m),
		Cache:         app.cache,
		DB:            app.db,
	})
	if err != nil {
		return fmt.Errorf("http init error: %w", err)
	}
	return nil
}

func (app *App) tokenStore(ctx context.Context) (refreshtokens.Store, error) {
	switch app.config.TokenStore {
	case config.TokenStoreRedis:
		app.redis = redis.NewClient(&redis.Options{
			Addr:     app.config.RedisAddr,
			Password: app.config.RedisPassword,
		})
		if err := app.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return refreshtokens.NewRedisRepository(app.redis, issuer, app.config.RefreshTokenTTL), nil
	case config.TokenStoreMemory:
		app.logger.Warn(ctx, "refresh tokens are kept in memory and lost on restart")
		return refreshtokens.NewMemoryRepository(), nil
	default:
		return refreshtokens.NewPostgresStore(app.db), nil
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) close(ctx context.Context) {
	if app.cache != nil {
		st := app.cache.Stats()
		app.logger.Info(ctx, "response cache closing", "entries", st.Size, "hits", st.Hits, "misses", st.Misses,
			"stores", st.Stores, "invalidations", st.Invalidations)
		app.cache.Close()
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error(ctx, "redis close", "err", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close", "err", err)
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "addr", app.config.HTTPAddr, "token_store", app.config.TokenStore)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.close(context.WithoutCancel(ctx))
	app.logger.Info(ctx, "App stopped")
}
