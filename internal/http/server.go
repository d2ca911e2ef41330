package http

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"expensetracker/internal/aggregate"
	"expensetracker/internal/cache"
	"expensetracker/internal/export"
	"expensetracker/internal/ledger"
	"expensetracker/internal/log"
	"expensetracker/internal/middleware/ratelimit"
	"expensetracker/internal/middleware/security"
	"expensetracker/internal/middleware/trace"
	"expensetracker/internal/services"
)

const (
	defaultMaxBodyBytes = 12 << 20
	reportCacheSize     = 32
	reportCacheTTL      = 10 * time.Minute
)

// Deps are the collaborators the server presents. Exporter may be nil, in
// which case POST /report/export answers 503.
type Deps struct {
	Service  *services.ExpenseService
	Ledger   *ledger.Ledger
	Exporter *export.Runner
	Logger   *log.Logger
}

// Server is the JSON presentation adapter over the ledger.
type Server struct {
	*http.Server

	service  *services.ExpenseService
	ledger   *ledger.Ledger
	exporter *export.Runner
	logger   *log.Logger
	now      func() time.Time

	reports      *cache.LRUCache[aggregate.Report]
	pdfs         *cache.LRUCache[[]byte]
	cacheManager *cache.Manager

	limiter      *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware
	rateLimit    int
	maxBodyBytes int64

	started         time.Time
	expensesCreated atomic.Int64
	exportsQueued   atomic.Int64
}

type Option func(*Server)

// WithClock replaces time.Now for window and date defaults.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithRateLimit sets the per-client limit for POST endpoints.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) { s.rateLimit = perMinute }
}

func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBodyBytes = n }
}

func NewServer(addr string, deps Deps, opts ...Option) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	s := &Server{
		service:      deps.Service,
		ledger:       deps.Ledger,
		exporter:     deps.Exporter,
		logger:       logger.WithComponent(log.ComponentHTTP),
		now:          time.Now,
		reports:      cache.NewLRUCache[aggregate.Report](reportCacheSize, reportCacheTTL),
		pdfs:         cache.NewLRUCache[[]byte](reportCacheSize, reportCacheTTL),
		cacheManager: cache.NewManager(logger),
		rateLimit:    ratelimit.DefaultConfig().RequestsPerMinute,
		maxBodyBytes: defaultMaxBodyBytes,
		started:      time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.detector = security.NewDetector(logger)
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)
	s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: s.rateLimit, Logger: logger})

	s.cacheManager.Register(s.reports)
	s.cacheManager.Register(s.pdfs)
	s.cacheManager.StartCleanup(reportCacheTTL)

	s.Server = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.Handle("POST /expenses", s.limited(s.handleCreateExpense))
	mux.HandleFunc("GET /expenses", s.handleListExpenses)
	mux.HandleFunc("GET /expenses/today-total", s.handleTodayTotal)
	mux.HandleFunc("GET /expenses/{id}", s.handleGetExpense)

	mux.HandleFunc("GET /report", s.handleReport)
	mux.HandleFunc("GET /report.csv", s.handleReportCSV)
	mux.HandleFunc("GET /report.pdf", s.handleReportPDF)
	mux.HandleFunc("GET /report/share", s.handleReportShare)
	mux.Handle("POST /report/export", s.limited(s.handleExport))

	var h http.Handler = mux
	h = s.detector.Middleware(true)(h)
	h = security.Headers(security.DefaultHeadersConfig())(h)
	h = log.Middleware(s.logger, trace.FromRequest)(h)
	h = s.tracer.Handler(h)
	return h
}

func (s *Server) limited(fn http.HandlerFunc) http.Handler {
	onLimit := func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError().Write(w)
	}
	return s.limiter.Middleware(s.detector.ExtractClientIP, onLimit)(fn)
}

// Shutdown stops accepting requests, waits for in-flight ones and stops the
// background cleanup goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Server.Shutdown(ctx)
	s.limiter.Stop()
	s.cacheManager.Stop()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
