// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/submanage/internal/access"
	"github.com/bissquit/submanage/internal/audit"
	auditpostgres "github.com/bissquit/submanage/internal/audit/postgres"
	"github.com/bissquit/submanage/internal/config"
	"github.com/bissquit/submanage/internal/identity"
	"github.com/bissquit/submanage/internal/identity/jwt"
	identityredis "github.com/bissquit/submanage/internal/identity/redis"
	"github.com/bissquit/submanage/internal/lifecycle"
	lifecyclepostgres "github.com/bissquit/submanage/internal/lifecycle/postgres"
	"github.com/bissquit/submanage/internal/notifications"
	"github.com/bissquit/submanage/internal/notifications/email"
	"github.com/bissquit/submanage/internal/notifications/gateway"
	"github.com/bissquit/submanage/internal/pkg/ctxlog"
	"github.com/bissquit/submanage/internal/pkg/httputil"
	"github.com/bissquit/submanage/internal/pkg/metrics"
	"github.com/bissquit/submanage/internal/pkg/postgres"
	"github.com/bissquit/submanage/internal/staff"
	staffpostgres "github.com/bissquit/submanage/internal/staff/postgres"
	"github.com/bissquit/submanage/internal/subscribers"
	subscriberspostgres "github.com/bissquit/submanage/internal/subscribers/postgres"
	"github.com/bissquit/submanage/internal/summarizer"
	"github.com/bissquit/submanage/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	redis         *goredis.Client
	publisher     *gateway.Publisher
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	sweeper       *lifecycle.Sweeper
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(cfg.Database.URL); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	if cfg.Redis.URL != "" {
		client, err := identityredis.Connect(connectCtx, cfg.Redis.URL)
		if err != nil {
			app.closeClients()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		app.redis = client
	}

	if cfg.Notifications.Gateway.Enabled {
		publisher, err := gateway.Dial(cfg.Notifications.Gateway.URL, cfg.Notifications.Gateway.Exchange, 5, 2*time.Second)
		if err != nil {
			app.closeClients()
			return nil, fmt.Errorf("connect to messaging gateway: %w", err)
		}
		app.publisher = publisher
	}

	go metrics.CollectDBPoolMetrics(metricsCtx, db, 15*time.Second)

	router, err := app.setupRouter(metricsCtx)
	if err != nil {
		metricsCancel()
		app.closeClients()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"version", version.Version,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	// Stop the sweeper first so no sweep starts against a closing pool.
	if a.sweeper != nil {
		a.sweeper.Stop()
	}

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	errs = append(errs, a.closeClients()...)

	return errors.Join(errs...)
}

func (a *App) closeClients() []error {
	var errs []error
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gateway publisher: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	a.db.Close()
	return errs
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	auditRepo := auditpostgres.NewRepository(a.db)
	auditService := audit.NewService(auditRepo)

	staffRepo := staffpostgres.NewRepository(a.db)
	staffService := staff.NewService(staffRepo, auditRepo)

	if err := a.bootstrapAdmin(ctx, staffService); err != nil {
		return nil, err
	}

	issuer, err := jwt.NewIssuer(a.config.JWT.SecretKey, a.config.JWT.AccessTokenDuration)
	if err != nil {
		return nil, fmt.Errorf("create token issuer: %w", err)
	}

	var revocations identity.RevocationStore = identity.NewMemoryRevocations()
	if a.redis != nil {
		revocations = identityredis.NewStore(a.redis)
	} else {
		slog.Warn("redis not configured: logouts are only honoured by this instance")
	}
	identityService := identity.NewService(staffRepo, issuer, revocations)

	dispatcher, renderer, err := a.setupMessaging()
	if err != nil {
		return nil, err
	}

	subscriberOpts := subscribers.Options{
		ExpiringWindow: a.config.Lifecycle.ExpiringWindow,
		Messenger:      dispatcher,
		Renderer:       renderer,
	}
	summaries := summarizer.NewClient(summarizer.Config{
		URL:     a.config.Summarizer.URL,
		APIKey:  a.config.Summarizer.APIKey,
		Timeout: a.config.Summarizer.Timeout,
		RPS:     a.config.Summarizer.RPS,
	})
	if summaries.Enabled() {
		subscriberOpts.Summarizer = summaries
	}
	subscribersService := subscribers.NewService(subscriberspostgres.NewRepository(a.db), auditRepo, subscriberOpts)

	lifecycleService := lifecycle.NewService(lifecyclepostgres.NewRepository(a.db), auditRepo, lifecycle.Options{
		ExpiringWindow: a.config.Lifecycle.ExpiringWindow,
		WatchLimit:     a.config.Lifecycle.WatchLimit,
	})
	if a.config.Lifecycle.Sweep.Enabled {
		a.sweeper = lifecycle.NewSweeper(lifecycleService, a.config.Lifecycle.Sweep.Interval)
		a.sweeper.Start(ctx)
	}

	identityHandler := identity.NewHandler(identityService)
	staffHandler := staff.NewHandler(staffService)
	auditHandler := audit.NewHandler(auditService)
	subscribersHandler := subscribers.NewHandler(subscribersService)
	lifecycleHandler := lifecycle.NewHandler(lifecycleService)

	loginLimiter := httputil.NewRateLimiter(a.config.RateLimit.LoginRPS, a.config.RateLimit.LoginBurst)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(loginLimiter.Middleware)
			identityHandler.RegisterRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(identityService))

			identityHandler.RegisterProtectedRoutes(r)
			subscribersHandler.RegisterRoutes(r)
			lifecycleHandler.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequirePermission(access.ActionStaffRead))
				staffHandler.RegisterRoutes(r)
			})

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequirePermission(access.ActionAuditRead))
				auditHandler.RegisterRoutes(r)
			})
		})
	})

	return r, nil
}

// setupMessaging builds the channel dispatcher. Email is always registered
// (a disabled sender only logs); SMS and WhatsApp need the gateway.
func (a *App) setupMessaging() (*notifications.Dispatcher, *notifications.Renderer, error) {
	cfg := a.config.Notifications

	emailSender, err := email.NewSender(email.Config{
		Enabled:      cfg.Email.Enabled,
		SMTPHost:     cfg.Email.SMTPHost,
		SMTPPort:     cfg.Email.SMTPPort,
		SMTPUser:     cfg.Email.SMTPUser,
		SMTPPassword: cfg.Email.SMTPPassword,
		FromAddress:  cfg.Email.FromAddress,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create email sender: %w", err)
	}
	if !cfg.Email.Enabled {
		slog.Warn("email sender is disabled: email messages will be logged, not sent")
	}

	senders := []notifications.Sender{emailSender}
	if a.publisher != nil {
		senders = append(senders, gateway.NewSMSSender(a.publisher), gateway.NewWhatsAppSender(a.publisher))
	} else {
		slog.Warn("messaging gateway is disabled: SMS and WhatsApp messages are unavailable")
	}

	renderer, err := notifications.NewRenderer()
	if err != nil {
		return nil, nil, fmt.Errorf("create message renderer: %w", err)
	}

	return notifications.NewDispatcher(senders...), renderer, nil
}

func (a *App) bootstrapAdmin(ctx context.Context, svc *staff.Service) error {
	b := a.config.Bootstrap
	if b.AdminEmail == "" {
		return nil
	}

	created, err := svc.EnsureAdmin(ctx, b.AdminEmail, b.AdminPassword, b.AdminName)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		slog.Info("bootstrap admin created", "email", b.AdminEmail)
	}
	return nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
			httputil.Text(w, http.StatusServiceUnavailable, "Redis unavailable")
			return
		}
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Info())
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
