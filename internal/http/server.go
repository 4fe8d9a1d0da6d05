// Package http exposes the JSON API: transaction CRUD, aggregated
// summaries, and the two assistant endpoints (chat extraction and
// streamed insights).
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

	"github.com/go-chi/chi/v5"

	"finsight/internal/assist"
	"finsight/internal/cache"
	"finsight/internal/core"
	"finsight/internal/events"
	applog "finsight/internal/log"
	"finsight/internal/store"
)

// EventPublisher pushes mutation events to the export pipeline. Publishing
// is best-effort: a failure is logged and the request still succeeds.
type EventPublisher interface {
	Publish(ctx context.Context, ev *events.TransactionEvent) error
}

// RecordStore is what the API needs from a backend: the transaction
// operations plus change subscription for cache invalidation.
type RecordStore interface {
	store.TransactionStore
	store.Watcher
}

type Server struct {
	http.Server

	store       RecordStore
	assist      *assist.Service
	publisher   EventPublisher
	jwtSecret   []byte
	rateLimiter *rateLimiter

	// Per-owner summary cache, invalidated through the store's change
	// subscription (see watchOwner).
	summaryCache *cache.LRUCache[core.Summary]
	watchMu      sync.Mutex
	watchers     map[string]func()

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. publisher may be nil when no broker is configured.
func NewServer(addr string, st RecordStore, as *assist.Service, publisher EventPublisher, jwtSecret string) *Server {
	s := &Server{
		store:        st,
		assist:       as,
		publisher:    publisher,
		jwtSecret:    []byte(jwtSecret),
		rateLimiter:  newRateLimiter(),
		summaryCache: cache.NewLRUCache[core.Summary](500, 30*time.Second),
		watchers:     make(map[string]func()),
	}

	r := chi.NewRouter()
	r.Use(s.withSecurityHeaders)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.withAuth)

		r.Get("/transactions", s.handleListTransactions)
		r.Post("/transactions", s.handleCreateTransaction)
		r.Delete("/transactions/{id}", s.handleDeleteTransaction)
		r.Get("/summary", s.handleSummary)
		r.Post("/chat", s.handleChat)
		r.Post("/insights", s.handleInsights)
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Caches exposes the server's caches for periodic cleanup registration.
func (s *Server) Caches() []cache.Cleaner {
	return []cache.Cleaner{s.summaryCache}
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		s.watchMu.Lock()
		for _, cancel := range s.watchers {
			cancel()
		}
		s.watchers = make(map[string]func())
		s.watchMu.Unlock()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// watchOwner subscribes to the store's change feed for an owner the first
// time their summary is cached, dropping the cached entry on every
// mutation. The 30s TTL bounds staleness if a notification is missed.
func (s *Server) watchOwner(owner string) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if _, ok := s.watchers[owner]; ok {
		return
	}
	ch, cancel := s.store.Subscribe(owner)
	s.watchers[owner] = cancel
	go func() {
		for range ch {
			s.summaryCache.Delete(owner)
		}
	}()
}

// withSecurityHeaders adds security headers, rate limiting, and request
// logging to every response.
func (s *Server) withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldClientIP, clientIP)

		// Rate-limit mutating and model-backed requests.
		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", applog.FieldClientIP, clientIP, applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		slog.InfoContext(ctx, "Request completed",
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, rw.statusCode,
			applog.FieldDuration, time.Since(start).Milliseconds(),
			applog.FieldClientIP, clientIP)
	})
}

type contextKey string

const requestIDKey contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer so streamed responses keep working
// behind the logging middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// publishEvent notifies the export pipeline without failing the request.
func (s *Server) publishEvent(ctx context.Context, ev *events.TransactionEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "Failed to publish transaction event",
			"kind", ev.Kind, applog.FieldRecordID, ev.ID, applog.FieldError, err)
	}
}
