// Package http exposes the month ledger over a JSON API: materialization,
// the close/split/reopen workflow, balances, and the month report.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"mensile/internal/cache"
	"mensile/internal/core"
	"mensile/internal/services"
)

// MonthService is the slice of services.MonthService the handlers need.
type MonthService interface {
	MaterializeMonth(ctx context.Context, month core.Month) (int, error)
	CloseOccurrence(ctx context.Context, instanceID, occurrenceID string, amount core.Money, closedDate core.Date, paymentSourceID string) (core.Instance, error)
	SplitOccurrence(ctx context.Context, instanceID, occurrenceID string, paid core.Money, closedDate core.Date, paymentSourceID string) (core.Instance, error)
	ReopenOccurrence(ctx context.Context, instanceID, occurrenceID string) (core.Instance, error)
	AddAdhocOccurrence(ctx context.Context, instanceID string, date core.Date, amount core.Money) (core.Instance, error)
	Report(ctx context.Context, month core.Month) (services.MonthReport, error)
}

// Directory is the storage surface for templates, payment sources, balances
// and instance listings. Implemented by storage.SQLiteRepository.
type Directory interface {
	CreateTemplate(ctx context.Context, t core.Template) error
	ListActiveTemplates(ctx context.Context) ([]core.Template, error)
	CreatePaymentSource(ctx context.Context, s core.PaymentSource) error
	ListPaymentSources(ctx context.Context) ([]core.PaymentSource, error)
	UpsertBalance(ctx context.Context, month core.Month, sourceID string, amount core.Money) error
	ListInstances(ctx context.Context, month core.Month) ([]core.Instance, error)
}

type Server struct {
	http.Server
	months      MonthService
	dir         Directory
	rateLimiter *rateLimiter

	// Month reports are rebuilt from every instance in the month, so reads
	// are cached and invalidated whenever the month changes.
	reportCache *cache.LRUCache[services.MonthReport]

	today        func() core.Date
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, months MonthService, dir Directory) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		months:      months,
		dir:         dir,
		rateLimiter: newRateLimiter(),
		reportCache: cache.New[services.MonthReport](100, 5*time.Minute),
		today:       func() core.Date { return core.Date{Time: time.Now()} },
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /months/{month}/materialize", s.withRequestLog(s.handleMaterialize))
	mux.HandleFunc("GET /months/{month}/instances", s.withRequestLog(s.handleListInstances))
	mux.HandleFunc("GET /months/{month}/report", s.withRequestLog(s.handleMonthReport))
	mux.HandleFunc("PUT /months/{month}/balances/{sourceID}", s.withRequestLog(s.handleUpsertBalance))

	mux.HandleFunc("POST /instances/{instanceID}/occurrences", s.withRequestLog(s.handleAddAdhoc))
	mux.HandleFunc("POST /instances/{instanceID}/occurrences/{occurrenceID}/close", s.withRequestLog(s.handleClose))
	mux.HandleFunc("POST /instances/{instanceID}/occurrences/{occurrenceID}/split", s.withRequestLog(s.handleSplit))
	mux.HandleFunc("POST /instances/{instanceID}/occurrences/{occurrenceID}/reopen", s.withRequestLog(s.handleReopen))

	mux.HandleFunc("POST /templates", s.withRequestLog(s.handleCreateTemplate))
	mux.HandleFunc("GET /templates", s.withRequestLog(s.handleListTemplates))
	mux.HandleFunc("POST /payment-sources", s.withRequestLog(s.handleCreatePaymentSource))
	mux.HandleFunc("GET /payment-sources", s.withRequestLog(s.handleListPaymentSources))

	return s
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withRequestLog adds request ids, security headers, rate limiting of writes,
// and request logging.
func (s *Server) withRequestLog(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP,
				"method", r.Method,
				"url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
