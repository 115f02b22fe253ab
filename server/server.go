// Package server exposes a read-only HTTP view of the daemon: liveness, the
// global cooldown, request counts and per-request status.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/logger"
	"github.com/teranos/pegabatch/pipeline"
	"github.com/teranos/pegabatch/pulse/cache"
	"github.com/teranos/pegabatch/tracker"
)

// ShutdownTimeout bounds how long Shutdown waits for in-flight requests.
const ShutdownTimeout = 10 * time.Second

// Jobs is the tracker surface the server reads.
type Jobs interface {
	Get(ctx context.Context, id string) (*tracker.Request, error)
	CountByStatus(ctx context.Context) (map[tracker.Status]int, error)
}

// Cooldowns reads the global quota hold.
type Cooldowns interface {
	Cooldown(ctx context.Context) (*time.Time, error)
}

// CacheStats summarizes the response cache.
type CacheStats interface {
	Stats(ctx context.Context) (cache.Stats, error)
}

// Options wires the server. Cache and LastPass are optional.
type Options struct {
	Addr      string
	Jobs      Jobs
	Cooldowns Cooldowns
	Cache     CacheStats

	// LastPass returns the most recent scheduling pass; a zero time means
	// none has run yet.
	LastPass func() (pipeline.Summary, time.Time)
	Logger   *zap.SugaredLogger
}

// Server serves the status endpoints.
type Server struct {
	opts   Options
	router chi.Router
	logger *zap.SugaredLogger
	now    func() time.Time

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
}

// New builds a server and registers its routes.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.Logger
	}
	s := &Server{
		opts:   opts,
		logger: log.Named("server"),
		now:    time.Now,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", r.Method+" not allowed")
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/jobs/{id}", s.handleJob)
	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on opts.Addr and serves in the background. It returns once
// the listener is bound so callers can read Addr.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.opts.Addr)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.httpSrv = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Infow("Status server listening", "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("Status server stopped", logger.FieldError, err)
		}
	}()
	return nil
}

// Addr is the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.httpSrv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "failed to shut down status server")
	}
	s.logger.Infow("Status server stopped")
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debugw("request",
			"method", r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, ww.Status(),
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
	})
}
