// Package http is the JSON API surface.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"utangku/internal/auth"
	"utangku/internal/cache"
	"utangku/internal/core"
	"utangku/internal/ledger"
	"utangku/internal/store"
)

type Server struct {
	http.Server

	sessions *auth.Service
	ledger   *ledger.Service
	watcher  store.Watcher

	rateLimiter *rateLimiter

	// Recap responses are cached per owner and dropped on every write.
	recapCache *cache.LRU[core.Recap]

	cacheCtx    context.Context
	cacheCancel context.CancelFunc

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, sessions *auth.Service, svc *ledger.Service, watcher store.Watcher, recapTTL time.Duration) *Server {
	mux := http.NewServeMux()

	cacheCtx, cacheCancel := context.WithCancel(context.Background())
	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		sessions:    sessions,
		ledger:      svc,
		watcher:     watcher,
		rateLimiter: newRateLimiter(),
		recapCache:  cache.New[core.Recap](100, recapTTL),
		cacheCtx:    cacheCtx,
		cacheCancel: cacheCancel,
	}
	go s.recapCache.Janitor(cacheCtx, 10*time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /api/login", s.protect(s.handleLogin))
	mux.HandleFunc("POST /api/logout", s.protect(s.withSession(s.handleLogout)))

	mux.HandleFunc("GET /api/debtors", s.protect(s.withSession(s.handleListDebtors)))
	mux.HandleFunc("POST /api/debtors", s.protect(s.withSession(s.handleCreateDebtor)))
	mux.HandleFunc("GET /api/debtors/{id}", s.protect(s.withSession(s.handleDebtorDetail)))
	mux.HandleFunc("DELETE /api/debtors/{id}", s.protect(s.withSession(s.handleDeleteDebtor)))

	mux.HandleFunc("POST /api/debtors/{id}/debts", s.protect(s.withSession(s.handleAddDebt)))
	mux.HandleFunc("POST /api/debtors/{id}/payments/full", s.protect(s.withSession(s.handleFullPayment)))
	mux.HandleFunc("POST /api/debtors/{id}/payments/partial", s.protect(s.withSession(s.handlePartialPayment)))

	mux.HandleFunc("GET /api/recap", s.protect(s.withSession(s.handleRecap)))
	mux.HandleFunc("GET /api/export/recap.csv", s.protect(s.withSession(s.handleExportCSV)))

	mux.HandleFunc("GET /api/events/debtors", s.protect(s.withSession(s.handleDebtorEvents)))
	mux.HandleFunc("GET /api/events/debtors/{id}/transactions", s.protect(s.withSession(s.handleTransactionEvents)))

	return s
}

// Shutdown stops background goroutines along with the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheCancel()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// protect adds security headers, per-IP rate limiting on mutating methods,
// and request-ID logging.
func (s *Server) protect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := clientAddr(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		if mutating(r.Method) && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "rate limit exceeded", "client_ip", clientIP, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// withSession resolves the bearer token and hands the session to the handler.
func (s *Server) withSession(next func(http.ResponseWriter, *http.Request, auth.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Resolve(bearerToken(r))
		if err != nil {
			respondError(w, r, err)
			return
		}
		next(w, r, sess)
	}
}

func mutating(method string) bool {
	return method == http.MethodPost || method == http.MethodDelete ||
		method == http.MethodPut || method == http.MethodPatch
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

func clientAddr(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

type contextKey string

const requestIDKey contextKey = "request_id"

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the status-capturing wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
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

// Simple in-memory rate limiter, 60 mutating requests per minute per IP.
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]
	if !exists {
		rl.clients[clientIP] = &clientInfo{lastRequest: now, requests: 1}
		return true
	}
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}
	client.requests++
	client.lastRequest = now
	return client.requests <= 60
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}
