package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/kidega/apartments/pkg/auth"
	"github.com/kidega/apartments/pkg/authz"
	"github.com/kidega/apartments/pkg/cache"
	"github.com/kidega/apartments/pkg/documents"
	"github.com/kidega/apartments/pkg/httputil"
	"github.com/kidega/apartments/pkg/middleware"
	"github.com/kidega/apartments/pkg/observability"
	"github.com/kidega/apartments/pkg/storage"
)

// Options carries the dependencies of the API server.
type Options struct {
	Store       storage.Store
	Cache       *cache.Client
	Tokens      *auth.TokenManager
	Files       *documents.FileStore
	Logger      *observability.Logger
	Metrics     *observability.Metrics
	RateLimit   int
	RateWindow  time.Duration
	CORSOrigins []string
}

// Server is the HTTP API for the apartments backend.
type Server struct {
	router  *mux.Router
	store   storage.Store
	cache   *cache.Client
	checker *authz.Checker
	tokens  *auth.TokenManager
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewServer wires the handlers and middleware into a router.
func NewServer(opts Options) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		store:   opts.Store,
		cache:   opts.Cache,
		checker: authz.NewChecker(opts.Store),
		tokens:  opts.Tokens,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}

	if opts.RateLimit == 0 {
		opts.RateLimit = 10
	}
	if opts.RateWindow == 0 {
		opts.RateWindow = 15 * time.Minute
	}
	limiter := middleware.NewRateLimiter(opts.RateLimit, opts.RateWindow, opts.Metrics)

	s.router.Use(mux.MiddlewareFunc(httputil.RequestIDMiddleware))
	s.router.Use(mux.MiddlewareFunc(httputil.LoggingMiddleware(opts.Logger)))
	s.router.Use(mux.MiddlewareFunc(httputil.RecoveryMiddleware(opts.Logger)))
	s.router.Use(mux.MiddlewareFunc(httputil.CORSMiddleware(opts.CORSOrigins)))
	s.router.Use(mux.MiddlewareFunc(observability.HTTPMetricsMiddleware(opts.Metrics, routeTemplate)))

	authed := middleware.Authenticate(opts.Tokens)

	authHandlers := &AuthHandlers{server: s, limiter: limiter}
	authHandlers.RegisterRoutes(s.router, authed)

	(&BuildingHandlers{server: s}).RegisterRoutes(s.router, authed)
	(&UnitHandlers{server: s}).RegisterRoutes(s.router, authed)
	(&UserHandlers{server: s}).RegisterRoutes(s.router, authed)
	(&PaymentHandlers{server: s}).RegisterRoutes(s.router, authed)
	(&ReceiptHandlers{server: s}).RegisterRoutes(s.router, authed)
	(&DocumentHandlers{server: s, files: opts.Files}).RegisterRoutes(s.router, authed)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routeTemplate resolves the mux route template for metric labels.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return ""
}

// cached wraps a GET handler with the response cache. ttl=0 uses the
// data type's default.
func (s *Server) cached(dataType string, ttl time.Duration, h http.HandlerFunc) http.Handler {
	return middleware.Cache(s.cache, dataType, ttl)(h)
}
