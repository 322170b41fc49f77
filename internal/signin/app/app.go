package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/signin/internal/signin/clients"
	"github.com/aussiebroadwan/signin/internal/signin/cookies"
	"github.com/aussiebroadwan/signin/internal/signin/events"
	"github.com/aussiebroadwan/signin/internal/signin/federation"
	httpapi "github.com/aussiebroadwan/signin/internal/signin/http"
	"github.com/aussiebroadwan/signin/internal/signin/i18n"
	"github.com/aussiebroadwan/signin/internal/signin/identity"
	"github.com/aussiebroadwan/signin/internal/signin/messages"
	"github.com/aussiebroadwan/signin/internal/signin/service"
	"github.com/aussiebroadwan/signin/internal/signin/store/drivers/sqlite"
	"github.com/aussiebroadwan/signin/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application is the sign-in service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       *sqlite.Store
	keys     Keys
	locale   *i18n.Catalog
	registry *prometheus.Registry
	redis    *redis.Client // nil when messages live in cookies

	identity     *identity.Service
	resets       *identity.Resets
	signIn       *service.SignInService
	federation   *federation.Registry
	housekeeping *Housekeeping

	server *http.Server
	router *httpapi.Router
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg Config) *slog.Logger {
	return slogx.New(slogx.Config{
		Service: "signin",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
}

// OpenStore opens the database and applies migrations.
func OpenStore(cfg Config) (*sqlite.Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	return db, nil
}

// New creates the Application. Provider discovery runs under ctx.
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg:      cfg,
		logger:   NewLogger(cfg),
		locale:   i18n.New(),
		registry: prometheus.NewRegistry(),
	}

	db, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	app.db = db
	app.logger.Info("database migrations applied successfully")

	if app.keys, err = InitKeys(cfg, app.logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := app.initServices(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := app.initHTTP(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeeping.Start()

	app.logger.Info("signin service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		app.housekeeping.Stop()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains requests, stops housekeeping and closes connections.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down signin service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeeping.Stop()

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("signin service stopped")
	return nil
}

// Options maps cfg onto the sign-in flow options.
func (cfg Config) Options() service.Options {
	opts := service.DefaultOptions()
	opts.SiteName = cfg.SiteName
	opts.InvalidSignInRedirectURL = cfg.InvalidSignInRedirectURL
	opts.EnableSignOutPrompt = cfg.EnableSignOutPrompt
	opts.RequireSignOutPrompt = cfg.RequireSignOutPrompt
	opts.EnablePostSignOutAutoRedirect = cfg.PostSignOutAutoRedirect
	opts.PostSignOutAutoRedirectDelay = cfg.PostSignOutRedirectDelay
	if cfg.RememberMeDuration > 0 {
		opts.Cookies.RememberMeDuration = cfg.RememberMeDuration
	}
	if cfg.ResetEnabled {
		opts.LoginPageLinks = append(opts.LoginPageLinks, service.LoginPageLink{
			Type: "reset",
			Text: "page.login.forgot",
			Href: "~/" + service.PathResetPassword,
		})
	}
	return opts
}

func (app *Application) initServices(ctx context.Context) error {
	var providers []federation.Provider
	for _, pc := range app.cfg.Providers {
		p, err := federation.NewOIDC(ctx, federation.OIDCConfig{
			Name:         pc.Name,
			Caption:      pc.Caption,
			Hidden:       pc.Hidden,
			Issuer:       pc.Issuer,
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			Scopes:       pc.Scopes,
		})
		if err != nil {
			return err
		}
		app.logger.Info("external provider configured", "provider", pc.Name, "issuer", pc.Issuer)
		providers = append(providers, p)
	}
	registry, err := federation.NewRegistry(providers...)
	if err != nil {
		return err
	}
	app.federation = registry

	if err := app.registry.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	if err := app.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return err
	}
	metrics, err := events.NewMetrics(app.registry)
	if err != nil {
		return fmt.Errorf("failed to register event metrics: %w", err)
	}

	app.identity = &identity.Service{
		Store:        app.db,
		Registration: app.cfg.Registration,
		TOTPIssuer:   app.cfg.TOTPIssuer,
	}
	app.resets = &identity.Resets{
		Store:       app.db,
		Sender:      identity.LogCodeSender{},
		Locale:      app.locale,
		TTL:         app.cfg.ResetCodeTTL,
		MaxAttempts: app.cfg.ResetMaxAttempts,
	}

	app.signIn = &service.SignInService{
		Options:   app.cfg.Options(),
		Identity:  app.identity,
		Clients:   &clients.Store{Clients: app.db.Clients()},
		Events:    events.Fanout{events.LogSink{}, metrics},
		Locale:    app.locale,
		Providers: registry,
	}
	if app.cfg.ResetEnabled {
		app.signIn.Resets = app.resets
	}

	app.housekeeping = NewHousekeeping(app.logger, app.cfg.HousekeepingInterval,
		PurgeTask{Name: "password_resets", Purger: app.resets},
	)
	return nil
}

func (app *Application) cookiePath() string {
	if app.cfg.BasePath == "" {
		return "/"
	}
	return app.cfg.BasePath
}

// messageSource keeps sign-in messages in Redis when configured, else in
// sealed cookies.
func (app *Application) messageSource() (messages.Source, []httpapi.ReadyCheck, error) {
	if app.cfg.RedisURL == "" {
		return messages.Cookies{
			Sealer: app.keys.Sealer,
			Path:   app.cookiePath(),
			Secure: app.cfg.CookieSecure,
			TTL:    app.cfg.MessageTTL,
		}, nil, nil
	}

	opts, err := redis.ParseURL(app.cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid %s: %w", KeyRedisURL, err)
	}
	app.redis = redis.NewClient(opts)
	src := messages.Redis{Client: app.redis, Prefix: "signin:", TTL: app.cfg.MessageTTL}
	app.logger.Info("sign-in messages stored in redis", "addr", opts.Addr)

	return src, []httpapi.ReadyCheck{{Name: "redis", Check: src.Ping}}, nil
}

func (app *Application) initHTTP() error {
	source, checks, err := app.messageSource()
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(app.cfg.BasePath, BuildVersion, app.db, app.locale, app.logger)
	router.SignIn = app.signIn
	router.Identity = app.identity
	router.Federation = app.federation
	router.Clients = app.signIn.Clients
	router.Messages = source
	router.Cookies = cookies.Config{
		Signer: app.keys.Signer,
		Sealer: app.keys.Sealer,
		Path:   app.cookiePath(),
		Secure: app.cfg.CookieSecure,
	}
	router.Gatherer = app.registry
	router.Checks = checks
	router.Limits = app.cfg.Limits
	router.TrustProxy = app.cfg.TrustProxyHeaders
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return nil
}
