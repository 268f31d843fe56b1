package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"qbeAdmin/internal/admin"
	"qbeAdmin/internal/handlers"
	"qbeAdmin/internal/metrics"
	"qbeAdmin/internal/qbe"
	"qbeAdmin/internal/services"
	"qbeAdmin/internal/store"
	"qbeAdmin/internal/utils"
)

const userCacheTTL = 5 * time.Minute

type App struct {
	Config       *Config
	DB           *sql.DB
	SessionStore sessions.Store
	// PendingStore holds the qbe session server-side whatever SESSION_STORE
	// selects for the auth session.
	PendingStore sessions.Store
	OAuthConfig  *oauth2.Config
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	UserCache    *utils.UserCache
	Auth         *handlers.AuthHandlers
	Site         *admin.Site
	Limiters     map[string]*RateLimiter
	userInfo     handlers.UserInfoFunc
}

// NewApp wires repositories, services and the admin site on top of an open,
// migrated database.
func NewApp(config *Config, db *sql.DB) (*App, error) {
	sessionStore, err := newSessionStore(config)
	if err != nil {
		return nil, err
	}
	pendingStore, err := newPendingStore(config)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app := &App{
		Config:       config,
		DB:           db,
		SessionStore: sessionStore,
		PendingStore: pendingStore,
		OAuthConfig: &oauth2.Config{
			ClientID:     config.GoogleClientID,
			ClientSecret: config.GoogleClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		Registry:  registry,
		Metrics:   metrics.New(registry),
		UserCache: utils.NewUserCache(userCacheTTL),
		Limiters:  NewLimiters(config.RateLimitRPS, config.RateLimitBurst),
		userInfo:  handlers.GoogleUserInfo,
	}

	metrics.RegisterCacheSize(registry, "users", app.UserCache.Cache().Size)

	users := store.NewUserRepo(db)
	groups := store.NewGroupRepo(db)
	queries := store.NewSavedQueryRepo(db)
	perms := store.NewPermissionRepo(db)

	authService := services.NewAuthService(users, app.UserCache, config.SessionMaxAge)
	app.Auth = handlers.NewAuthHandlers(sessionStore, pendingStore, app.OAuthConfig, authService, app.userInfo, config.SessionMaxAge, config.IsProduction())

	links := handlers.QBELinks{FormBase: config.QBEFormURL, ResultsBase: config.QBEResultsURL}
	savedQueries := services.NewSavedQueryService(queries, perms, app.Metrics)

	app.Site = admin.NewSite("/admin", "/login")
	if err := app.Site.Register(handlers.NewSavedQueryAdmin(app.Site, savedQueries, pendingStore, links)); err != nil {
		return nil, err
	}
	if err := app.Site.Register(handlers.NewPermissionAdmin(app.Site, perms, users, groups, queries)); err != nil {
		return nil, err
	}

	return app, nil
}

func sessionOptions(config *Config) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   config.SessionMaxAge,
		HttpOnly: true,
		Secure:   config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
}

// newPendingStore builds the filesystem store of the qbe session under
// SESSION_DIR, or a directory in the system temp dir.
func newPendingStore(config *Config) (sessions.Store, error) {
	dir := config.SessionDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "qbe-admin-sessions")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return qbe.NewSessionStore(dir, config.SessionSecret, sessionOptions(config)), nil
}

// newSessionStore builds the gorilla store of the auth session selected by
// SESSION_STORE.
func newSessionStore(config *Config) (sessions.Store, error) {
	options := sessionOptions(config)

	switch config.SessionStore {
	case "filesystem":
		dir := config.SessionDir
		if dir == "" {
			dir = os.TempDir()
		} else if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
		fs := sessions.NewFilesystemStore(dir, config.SessionSecret)
		fs.MaxAge(config.SessionMaxAge)
		fs.MaxLength(0)
		fs.Options = options
		return fs, nil
	default:
		cs := sessions.NewCookieStore(config.SessionSecret)
		cs.MaxAge(config.SessionMaxAge)
		cs.Options = options
		return cs, nil
	}
}

// Router builds the HTTP handler of the service.
func (app *App) Router() http.Handler {
	router := mux.NewRouter()

	router.Use(RequestIDMiddleware)
	router.Use(RecoveryMiddleware)
	router.Use(LoggingMiddleware(app.Metrics))
	router.Use(RateLimitMiddleware(app.Limiters))
	router.Use(AuthMiddleware(app.Auth))
	router.Use(CSRFMiddleware)

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/admin/", http.StatusFound)
	}).Methods(http.MethodGet)
	router.HandleFunc("/healthz", app.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	router.HandleFunc("/login", app.Auth.HandleLogin).Methods(http.MethodGet)
	router.HandleFunc("/logout", app.Auth.HandleLogout).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/auth/callback", app.Auth.HandleOAuthCallback).Methods(http.MethodGet)
	router.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))

	app.Site.Mount(router)
	handlers.NewPendingAPI(app.Site, app.PendingStore, handlers.QBELinks{
		FormBase:    app.Config.QBEFormURL,
		ResultsBase: app.Config.QBEResultsURL,
	}, app.Metrics).Register(router)

	return router
}

func (app *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := app.DB.PingContext(r.Context()); err != nil {
		utils.RespondWithError(w, r, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	utils.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
