package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"rundown/internal/cache"
	"rundown/internal/core"
	"rundown/internal/log"
	"rundown/internal/middleware/ratelimit"
	"rundown/internal/middleware/security"
	"rundown/internal/middleware/trace"
	"rundown/internal/ports"
	"rundown/internal/services"
)

// Generator runs generation batches.
type Generator interface {
	Generate(ctx context.Context, projectID string) (core.GenerationResult, error)
}

// ScenarioManager is the scenario surface the API exposes.
type ScenarioManager interface {
	CreateScenario(ctx context.Context, projectID, name string, adj core.Adjustment, createdBy string) (core.Scenario, error)
	ApplyScenario(ctx context.Context, projectID, name string) (services.ApplyResult, error)
	ListScenarios(ctx context.Context, projectID string) ([]core.Scenario, error)
	UpdateScenario(ctx context.Context, projectID, name string, adj core.Adjustment) (services.ApplyResult, error)
	DeleteScenario(ctx context.Context, projectID, name string) error
}

// Notifier accepts change notifications; Notify reports false once stopped.
type Notifier interface {
	Notify(projectID string) bool
}

// Store is the read side the API serves profiles and logs from.
type Store interface {
	ports.ProjectReader
	ports.ProfileStore
	ports.GenerationLog
}

// Options configures a Server. Generator, Scenarios and Store are required.
type Options struct {
	Generator Generator
	Scenarios ScenarioManager
	Store     Store
	// Notifier is nil when change notifications are disabled.
	Notifier Notifier
	// Ready backs /readyz; nil always reports ready.
	Ready func(ctx context.Context) error
	// Logger is attached to every request context.
	Logger *log.Logger

	ProfileCacheTTL   time.Duration
	ProfileCacheSize  int
	RequestsPerMinute int
}

// Server is the rundown JSON API.
type Server struct {
	http.Server
	generator Generator
	scenarios ScenarioManager
	store     Store
	notifier  Notifier
	ready     func(ctx context.Context) error

	profileCache *cache.LRUCache[[]core.ProfilePoint]
	cacheManager *cache.Manager
	rateLimiter  *ratelimit.Limiter
	tracer       *trace.Middleware
	detector     *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, opts Options) *Server {
	if opts.ProfileCacheSize <= 0 {
		opts.ProfileCacheSize = 500
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}

	detector := security.NewDetector()
	s := &Server{
		generator:    opts.Generator,
		scenarios:    opts.Scenarios,
		store:        opts.Store,
		notifier:     opts.Notifier,
		ready:        opts.Ready,
		cacheManager: cache.NewManager(),
		rateLimiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute}),
		tracer:       trace.NewMiddleware(detector.ExtractClientIP),
		detector:     detector,
	}
	if opts.ProfileCacheTTL > 0 {
		s.profileCache = cache.NewLRUCache[[]core.ProfilePoint](opts.ProfileCacheSize, opts.ProfileCacheTTL)
		s.cacheManager.Register(s.profileCache)
		s.cacheManager.StartCleanup(opts.ProfileCacheTTL)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/rundown/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/rundown/profiles", s.handleProfiles)
	mux.HandleFunc("GET /api/rundown/profiles/export", s.handleExport)
	mux.HandleFunc("POST /api/rundown/scenarios", s.handleCreateScenario)
	mux.HandleFunc("GET /api/rundown/scenarios", s.handleListScenarios)
	mux.HandleFunc("PUT /api/rundown/scenarios", s.handleUpdateScenario)
	mux.HandleFunc("DELETE /api/rundown/scenarios", s.handleDeleteScenario)
	mux.HandleFunc("POST /api/rundown/scenarios/apply", s.handleApplyScenario)
	mux.HandleFunc("POST /api/rundown/notifications", s.handleNotification)
	mux.HandleFunc("GET /api/rundown/generation-log", s.handleGenerationLog)

	onLimit := func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
	}

	var h http.Handler = mux
	h = s.rateLimiter.Middleware(detector.ExtractClientIP, onLimit)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = log.RequestIDMiddleware(trace.FromRequest)(h)
	h = log.Middleware(opts.Logger)(h)
	h = s.tracer.Middleware(h)
	h = detector.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		// Generation of a large portfolio can take a while.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
	return s
}

// InvalidateProfiles drops cached series of projectID. It has the signature
// of Generator.OnRegenerated and is registered there.
func (s *Server) InvalidateProfiles(projectID, _ string) {
	if s.profileCache == nil {
		return
	}
	s.profileCache.DeletePrefix(projectID + "|")
}

func profileCacheKey(q ProfileQuery) string {
	return q.ProjectID + "|" + q.Scenario + "|" + string(q.ProfileType)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
