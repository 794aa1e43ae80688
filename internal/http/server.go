package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"feeledger/internal/cache"
	"feeledger/internal/core"
	"feeledger/internal/log"
	"feeledger/internal/middleware/ratelimit"
	"feeledger/internal/middleware/security"
	"feeledger/internal/middleware/trace"
	"feeledger/internal/receipt"
	"feeledger/internal/services"
)

const classesCacheKey = "classes"

// Service is the slice of services.FeeService the API drives.
type Service interface {
	RecordPayment(ctx context.Context, p core.NewPayment) (services.PaymentResult, error)
	ListTransactions(ctx context.Context, studentID int64) ([]core.FeeTransaction, error)
	ComputeBalance(ctx context.Context, studentID int64) (core.Balance, error)
	Receipt(ctx context.Context, txID int64) (receipt.Document, error)
	FeeCard(ctx context.Context, studentID int64) (core.FeeCard, error)

	EnrollStudent(ctx context.Context, ns core.NewStudent) (core.Student, error)
	GetStudent(ctx context.Context, id int64) (core.Student, error)
	ListStudents(ctx context.Context, f core.StudentFilter) ([]core.Student, error)
	ArchiveStudent(ctx context.Context, id int64) error
	SetTotalFee(ctx context.Context, id int64, fee core.Money) error

	CreateClass(ctx context.Context, c core.Class) (core.Class, error)
	ListClasses(ctx context.Context) ([]core.Class, error)

	SaveExamResult(ctx context.Context, r core.ExamResult) (core.ExamResult, error)
	ListExamResults(ctx context.Context, studentID int64) ([]core.ExamResult, error)

	Ready(ctx context.Context) error
}

type Options struct {
	RateLimitPerMinute int
	// TrustedProxies extends the private ranges whose forwarding headers
	// are used for the client IP.
	TrustedProxies []string
	Logger         *log.Logger
}

type Server struct {
	http.Server
	svc       Service
	validator *RequestValidator

	classCache *cache.LRUCache[[]core.Class]
	caches     *cache.Manager
	limiter    *ratelimit.Limiter
	detector   *security.Detector
	tracer     *trace.Middleware
	started    time.Time

	shutdownOnce sync.Once
}

func NewServer(addr string, svc Service, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	s := &Server{
		svc:        svc,
		validator:  NewRequestValidator(),
		classCache: cache.NewLRUCache[[]core.Class](1, 5*time.Minute),
		caches:     cache.NewManager(),
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:   security.NewDetector(),
		tracer:     trace.NewMiddleware(),
		started:    time.Now(),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}
	s.caches.Register(s.classCache)
	s.caches.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, true, s.handleRateLimited)(handler)
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = log.AccessLog(s.detector.ExtractClientIP)(handler)
	handler = log.RequestIDMiddleware(trace.FromRequest)(handler)
	handler = log.Middleware(logger.WithComponent(log.ComponentHTTP))(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /classes", s.handleListClasses)
	mux.HandleFunc("POST /classes", s.handleCreateClass)

	mux.HandleFunc("POST /students", s.handleEnrollStudent)
	mux.HandleFunc("GET /students", s.handleListStudents)
	mux.HandleFunc("GET /students/{id}", s.handleGetStudent)
	mux.HandleFunc("POST /students/{id}/archive", s.handleArchiveStudent)
	mux.HandleFunc("PUT /students/{id}/total-fee", s.handleSetTotalFee)

	mux.HandleFunc("GET /students/{id}/fees", s.handleFeeCard)
	mux.HandleFunc("GET /students/{id}/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /students/{id}/balance", s.handleBalance)
	mux.HandleFunc("POST /students/{id}/payments", s.handleRecordPayment)

	mux.HandleFunc("GET /transactions/{id}/receipt", s.handleReceipt)

	mux.HandleFunc("POST /students/{id}/results", s.handleSaveExamResult)
	mux.HandleFunc("GET /students/{id}/results", s.handleListExamResults)
}

// Shutdown stops background goroutines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusTooManyRequests, errorJSON{Error: "rate limit exceeded, please try again later"})
}
