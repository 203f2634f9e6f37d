// Package middleware provides HTTP middleware for the resolver server.
package middleware

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulbellamy/ratecounter"

	"media-resolver-go/pkg/config"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/metrics"
)

// Chain combines multiple middleware into a single handler.
func Chain(handler http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

// RequestID adds a unique request ID to each request.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		r.Header.Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// Logging logs HTTP requests with timing information.
func Logging(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			requestID := r.Header.Get("X-Request-ID")
			reqLog := log.RequestLogger(r.Method, r.URL.Path, r.RemoteAddr, requestID)

			next.ServeHTTP(wrapped, r.WithContext(reqLog.WithContext(r.Context())))

			reqLog.WithDuration(time.Since(start)).Info("request completed",
				"status", wrapped.statusCode,
				"bytes", wrapped.bytesWritten,
			)
		})
	}
}

// CORS answers preflight requests and sets CORS headers for the allowed
// origins. A "*" entry allows every origin.
func CORS(allowed []string) func(http.Handler) http.Handler {
	allowAll := slices.Contains(allowed, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && slices.Contains(allowed, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "*")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Auth checks API password authentication.
func Auth(cfg *config.Config, log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth if no password configured
			if cfg.APIPassword == "" || isPublicEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if r.URL.Query().Get("api_password") == cfg.APIPassword ||
				r.Header.Get("X-API-Password") == cfg.APIPassword {
				next.ServeHTTP(w, r)
				return
			}

			log.Warn("unauthorized request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeDetail(w, http.StatusUnauthorized, "Unauthorized")
		})
	}
}

// Recovery recovers from panics and logs them.
func Recovery(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("panic recovered",
						"error", err,
						"path", r.URL.Path,
						"method", r.Method,
					)
					writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter caps requests per client address over a sliding minute.
type RateLimiter struct {
	limit   int
	window  time.Duration
	metrics *metrics.Metrics
	log     *logging.Logger

	mu      sync.Mutex
	clients map[string]*ratecounter.RateCounter
}

// maxTrackedClients triggers pruning of idle counters.
const maxTrackedClients = 4096

// NewRateLimiter allows limit requests per minute per client. A limit of
// zero or less disables it. m may be nil.
func NewRateLimiter(limit int, m *metrics.Metrics, log *logging.Logger) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  time.Minute,
		metrics: m,
		log:     log.WithComponent("ratelimit"),
		clients: make(map[string]*ratecounter.RateCounter),
	}
}

// Allow records a request from client and reports whether it is within
// the limit.
func (l *RateLimiter) Allow(client string) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	counter, ok := l.clients[client]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			l.prune()
		}
		counter = ratecounter.NewRateCounter(l.window)
		l.clients[client] = counter
	}

	if counter.Rate() >= int64(l.limit) {
		return false
	}
	counter.Incr(1)
	return true
}

func (l *RateLimiter) prune() {
	for client, counter := range l.clients {
		if counter.Rate() == 0 {
			delete(l.clients, client)
		}
	}
}

// Middleware rejects requests over the limit with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientAddr(r)
		if !l.Allow(client) {
			l.metrics.RateLimited()
			l.log.Warn("rate limit exceeded", "client", client, "path", r.URL.Path)
			writeDetail(w, http.StatusTooManyRequests, fmt.Sprintf("Rate limit exceeded: %d per 1 minute", l.limit))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientAddr returns the host part of the peer address.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseWriter wraps http.ResponseWriter to capture status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// isPublicEndpoint returns true for endpoints that don't require auth.
func isPublicEndpoint(path string) bool {
	switch path {
	case "/", "/health", "/metrics", "/favicon.ico":
		return true
	}
	return strings.HasPrefix(path, "/get_file/")
}
