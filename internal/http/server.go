// Package http exposes the ledger as a JSON REST API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zerobudget/internal/core"
	"zerobudget/internal/log"
	"zerobudget/internal/middleware/ratelimit"
	"zerobudget/internal/middleware/security"
	"zerobudget/internal/middleware/trace"
)

// OwnerHeader names the ledger owner of a request. Authentication happens
// upstream; the server trusts this header.
const OwnerHeader = "X-Ledger-Owner"

const defaultMaxBodyBytes = 1 << 20

// Ledger is the service the handlers drive.
type Ledger interface {
	CreateAccount(ctx context.Context, owner string, in core.AccountInput) (core.Account, error)
	UpdateAccount(ctx context.Context, owner string, id int64, in core.AccountUpdate) (core.Account, error)
	DeleteAccount(ctx context.Context, owner string, id int64) error
	ListAccounts(ctx context.Context, owner string) ([]core.Account, error)
	GetAccount(ctx context.Context, owner string, id int64) (core.Account, error)

	CreateCategory(ctx context.Context, owner string, in core.CategoryInput) (core.Category, error)
	RenameCategory(ctx context.Context, owner string, id int64, in core.CategoryInput) (core.Category, error)
	DeleteCategory(ctx context.Context, owner string, id int64) error
	ListCategories(ctx context.Context, owner string) ([]core.Category, error)
	CategoryBalances(ctx context.Context, owner string) ([]core.CategoryBalance, error)

	Allocate(ctx context.Context, owner string, in core.AllocationInput) (core.Allocation, error)
	MoveMoney(ctx context.Context, owner string, in core.MoveInput) (core.MoveResult, error)
	ListAllocations(ctx context.Context, owner string) ([]core.Allocation, error)

	CreateTransaction(ctx context.Context, owner string, in core.TransactionInput) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, owner string, id int64) error
	ListTransactions(ctx context.Context, owner string) ([]core.Transaction, error)

	Summary(ctx context.Context, owner string) (core.Summary, error)
	Ping(ctx context.Context) error
}

type Config struct {
	Addr         string
	DefaultOwner string
	RateLimitRPM int
	MaxBodyBytes int64
	Logger       *log.Logger
}

type Server struct {
	http.Server
	ledger       Ledger
	logger       *log.Logger
	defaultOwner string
	maxBodyBytes int64
	startedAt    time.Time

	detector     *security.Detector
	rateLimiter  *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(cfg Config, ledger Ledger) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	s := &Server{
		ledger:       ledger,
		logger:       logger.WithComponent(log.ComponentHTTP),
		defaultOwner: cfg.DefaultOwner,
		maxBodyBytes: maxBody,
		startedAt:    time.Now(),
		detector:     security.NewDetector(),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitRPM,
			MutatingOnly:      true,
		}),
	}
	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(log.Middleware(s.logger, trace.RequestID))
	r.Use(trace.NewMiddleware(s.detector.ExtractClientIP).Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)
	r.Use(s.rateLimiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, &core.Error{Kind: core.KindNotFound, Message: "no route for " + r.URL.Path})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Kind: "method_not_allowed", Message: r.Method + " is not allowed on " + r.URL.Path})
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.handleListAccounts)
			r.Post("/", s.handleCreateAccount)
			r.Get("/{id}", s.handleGetAccount)
			r.Put("/{id}", s.handleUpdateAccount)
			r.Patch("/{id}", s.handleUpdateAccount)
			r.Delete("/{id}", s.handleDeleteAccount)
		})
		r.Route("/categories", func(r chi.Router) {
			r.Get("/", s.handleListCategories)
			r.Post("/", s.handleCreateCategory)
			r.Get("/balances", s.handleCategoryBalances)
			r.Put("/{id}", s.handleRenameCategory)
			r.Patch("/{id}", s.handleRenameCategory)
			r.Delete("/{id}", s.handleDeleteCategory)
		})
		r.Route("/allocations", func(r chi.Router) {
			r.Get("/", s.handleListAllocations)
			r.Post("/", s.handleAllocate)
			r.Post("/move", s.handleMoveMoney)
		})
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.handleListTransactions)
			r.Post("/", s.handleCreateTransaction)
			r.Delete("/{id}", s.handleDeleteTransaction)
		})
		r.Get("/summary", s.handleSummary)
	})

	return r
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorBody{Kind: "rate_limited", Message: "Rate limit exceeded. Please try again later."})
}

// Shutdown stops the rate limiter and drains the HTTP server. Only the
// first call has any effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
