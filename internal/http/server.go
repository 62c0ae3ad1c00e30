package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/cors"
	"golang.org/x/sync/singleflight"

	"spendly/internal/access"
	"spendly/internal/cache"
	"spendly/internal/guard"
	"spendly/internal/log"
	"spendly/internal/middleware/ratelimit"
	"spendly/internal/middleware/security"
	"spendly/internal/middleware/trace"
	"spendly/internal/prefs"
	"spendly/internal/rates"
	"spendly/internal/state"
)

// Deps are the modules the handlers call into.
type Deps struct {
	Auth         *access.Auth
	Usernames    *access.Usernames
	Profiles     *access.Profiles
	Transactions *access.Transactions
	Savings      *access.Savings
	Categories   *access.Categories
	Prefs        prefs.Store
	Rates        rates.Source

	// Files serves stored blobs under FilesPrefix. Optional.
	Files       http.Handler
	FilesPrefix string

	// Ready reports whether the backing services answer. Optional.
	Ready  func(ctx context.Context) error
	Logger *log.Logger
}

// Options tunes the server.
type Options struct {
	CORSOrigins        []string
	WorkspaceCacheSize int
	WorkspaceTTL       time.Duration
	RatesRefresh       time.Duration
	// Realtime keeps every workspace subscribed to its documents.
	Realtime bool
	// MaxUploadBytes bounds profile photo uploads.
	MaxUploadBytes int64
	API            ratelimit.Config
	Login          ratelimit.Config
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		CORSOrigins:        []string{"http://localhost:5173"},
		WorkspaceCacheSize: 256,
		WorkspaceTTL:       30 * time.Minute,
		RatesRefresh:       state.DefaultRefreshInterval,
		MaxUploadBytes:     5 << 20,
		API:                ratelimit.DefaultConfig(),
		Login:              ratelimit.AuthConfig(),
	}
}

type Server struct {
	http.Server

	deps   Deps
	opts   Options
	logger *log.Logger
	guard  *guard.Guard
	start  time.Time

	// One workspace per session token, disposed on eviction.
	workspaces *cache.LRUCache[*state.Workspace]
	caches     *cache.Manager
	building   singleflight.Group

	detector     *security.Detector
	tracer       *trace.Middleware
	apiLimiter   *ratelimit.Limiter
	loginLimiter *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	logger := deps.Logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		deps:         deps,
		opts:         opts,
		logger:       logger,
		guard:        guard.New(deps.Logger),
		start:        time.Now(),
		caches:       cache.NewManager(deps.Logger),
		detector:     security.NewDetector(deps.Logger),
		apiLimiter:   ratelimit.NewLimiter(opts.API),
		loginLimiter: ratelimit.NewLimiter(opts.Login),
	}
	s.tracer = trace.NewMiddleware(deps.Logger, s.detector.ExtractClientIP)

	s.workspaces = cache.NewLRUCache[*state.Workspace](opts.WorkspaceCacheSize, opts.WorkspaceTTL).
		OnEvict(func(_ string, ws *state.Workspace) { ws.Dispose() })
	s.caches.Register(s.workspaces)
	s.caches.StartCleanup(time.Minute)

	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /app/{path...}", s.handleGuard)
	if s.deps.Files != nil {
		prefix := strings.TrimSuffix(s.deps.FilesPrefix, "/")
		if prefix == "" {
			prefix = "/files"
		}
		mux.Handle("GET "+prefix+"/", security.StaticAssetMiddleware(3600)(s.deps.Files))
	}

	login := s.loginLimiter.Middleware(s.logger, s.detector.ExtractClientIP, tooManyRequests)
	mux.Handle("POST /api/auth/register", login(http.HandlerFunc(s.handleRegister)))
	mux.Handle("POST /api/auth/login", login(http.HandlerFunc(s.handleLogin)))
	mux.Handle("POST /api/auth/password-reset", login(http.HandlerFunc(s.handleSendPasswordReset)))
	mux.Handle("POST /api/auth/password-reset/confirm", login(http.HandlerFunc(s.handleConfirmPasswordReset)))
	mux.HandleFunc("POST /api/auth/verify-email", s.handleVerifyEmail)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/me", s.withWorkspace(s.handleMe))
	mux.HandleFunc("PATCH /api/auth/me", s.withWorkspace(s.handleUpdateAccount))
	mux.HandleFunc("DELETE /api/auth/me", s.withWorkspace(s.handleDeleteAccount))
	mux.HandleFunc("POST /api/auth/reauthenticate", s.withWorkspace(s.handleReauthenticate))
	mux.HandleFunc("POST /api/auth/send-verification", s.withWorkspace(s.handleSendVerification))

	mux.HandleFunc("GET /api/usernames/{username}/available", s.handleUsernameAvailable)
	mux.HandleFunc("GET /api/usernames/suggestions", s.handleUsernameSuggestions)
	mux.HandleFunc("GET /api/users/{username}", s.handlePublicProfile)
	mux.HandleFunc("PUT /api/profile/username", s.withWorkspace(s.handleSetUsername))
	mux.HandleFunc("GET /api/profile", s.withWorkspace(s.handleGetProfile))
	mux.HandleFunc("POST /api/profile/photo", s.withWorkspace(s.handleUploadPhoto))

	mux.HandleFunc("GET /api/transactions", s.withWorkspace(s.handleListTransactions))
	mux.HandleFunc("POST /api/transactions", s.withWorkspace(s.handleCreateTransaction))
	mux.HandleFunc("GET /api/transactions/summary", s.withWorkspace(s.handleTransactionSummary))
	mux.HandleFunc("GET /api/transactions/{id}", s.withWorkspace(s.handleGetTransaction))
	mux.HandleFunc("PATCH /api/transactions/{id}", s.withWorkspace(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.withWorkspace(s.handleDeleteTransaction))

	mux.HandleFunc("GET /api/savings", s.withWorkspace(s.handleListSavings))
	mux.HandleFunc("POST /api/savings", s.withWorkspace(s.handleCreateSaving))
	mux.HandleFunc("GET /api/savings/range", s.withWorkspace(s.handleSavingsRange))
	mux.HandleFunc("PUT /api/savings/year/{year}", s.withWorkspace(s.handleSaveYear))
	mux.HandleFunc("GET /api/savings/goal", s.withWorkspace(s.handleGetGoal))
	mux.HandleFunc("PUT /api/savings/goal", s.withWorkspace(s.handleSetGoal))
	mux.HandleFunc("PATCH /api/savings/{id}", s.withWorkspace(s.handleUpdateSaving))
	mux.HandleFunc("DELETE /api/savings/{id}", s.withWorkspace(s.handleDeleteSaving))

	mux.HandleFunc("GET /api/categories", s.withWorkspace(s.handleGetCategories))
	mux.HandleFunc("POST /api/categories", s.withWorkspace(s.handleAddCategory))
	mux.HandleFunc("DELETE /api/categories/{type}/{name}", s.withWorkspace(s.handleRemoveCategory))
	mux.HandleFunc("POST /api/categories/{name}/subcategories", s.withWorkspace(s.handleAddSubcategory))
	mux.HandleFunc("DELETE /api/categories/{name}/subcategories/{sub}", s.withWorkspace(s.handleRemoveSubcategory))
	mux.HandleFunc("POST /api/categories/reset", s.withWorkspace(s.handleResetCategories))

	mux.HandleFunc("GET /api/currencies", s.handleListCurrencies)
	mux.HandleFunc("GET /api/currency", s.withWorkspace(s.handleGetCurrency))
	mux.HandleFunc("PUT /api/currency", s.withWorkspace(s.handleSetCurrency))
	mux.HandleFunc("GET /api/currency/convert", s.withWorkspace(s.handleConvert))
	mux.HandleFunc("POST /api/currency/refresh", s.withWorkspace(s.handleRefreshRates))
	mux.HandleFunc("POST /api/currency/backfill", s.withWorkspace(s.handleBackfillCurrency))

	mux.HandleFunc("GET /api/theme", s.withWorkspace(s.handleGetTheme))
	mux.HandleFunc("PUT /api/theme", s.withWorkspace(s.handleSetTheme))
	mux.HandleFunc("POST /api/theme/toggle", s.withWorkspace(s.handleToggleTheme))

	var handler http.Handler = mux
	handler = s.limitWrites(handler)
	handler = security.NoStore(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = cors.New(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type", trace.HeaderRequestID},
		ExposedHeaders:   []string{trace.HeaderRequestID, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           600,
	}).Handler(handler)
	handler = s.detector.Middleware(handler)
	handler = s.tracer.Middleware(handler)
	return handler
}

// limitWrites applies the API rate limit to every state-changing request.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	limited := s.apiLimiter.Middleware(s.logger, s.detector.ExtractClientIP, tooManyRequests)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			limited.ServeHTTP(w, r)
		}
	})
}

func tooManyRequests(w http.ResponseWriter, _ *http.Request) {
	ErrorResponse(http.StatusTooManyRequests, "Demasiadas solicitudes. Intenta de nuevo más tarde.").Write(w)
}

// Shutdown gracefully shuts down the server, its background routines and
// every cached workspace.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
		s.caches.Stop()
		s.apiLimiter.Stop()
		s.loginLimiter.Stop()
		s.workspaces.Purge()
	})

	return shutdownErr
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.start).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{
		"workspaces": s.workspaces.Size(),
	}

	if s.deps.Ready == nil {
		checks["store"] = "not_checked"
	} else if err := s.deps.Ready(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		checks["store"] = "failed"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": status,
		"checks": checks,
	})
}
