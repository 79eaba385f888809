package assetserve

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// rateLimit limits requests per second that can be requested from the
// server. Requires [RateLimitMiddleware] in the stack.
type rateLimit = rate.Limit

// MiddlewareFunc is a function type that wraps an http.Handler and returns a
// new http.HandlerFunc. This is the standard pattern for HTTP middleware in Go.
type MiddlewareFunc func(http.Handler) http.HandlerFunc

// MiddlewareStack is a collection of middleware functions applied in order,
// with the first middleware being the outermost.
type MiddlewareStack []MiddlewareFunc

// chainMiddleware helper to apply multiple middleware to a handler
func chainMiddleware(handler http.Handler, middleware ...MiddlewareFunc) http.Handler {
	// reverse order to run the first MiddlewareFunc passed first
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}
	return handler
}

// PathGuardMiddleware rejects any request whose decoded path contains a
// parent-directory segment. It has to run in front of the mux: the mux
// normalizes dot-dot paths with a redirect, which would turn the required
// 403 into a 301. Preflight requests never reach the guard because
// CORSMiddleware answers them first.
func PathGuardMiddleware(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hasParentSegment(r.URL.Path) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}
}

// MetricsMiddleware returns a middleware function that collects request
// counts and handler time for the shutdown summary.
func MetricsMiddleware(srv *Server) MiddlewareFunc {
	return func(next http.Handler) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			srv.totalRequests.Add(1)
			start := time.Now()
			next.ServeHTTP(w, r)
			srv.totalResponseTime.Add(time.Since(start).Microseconds())
		}
	}
}

// RequestLoggerMiddleware returns a middleware function that logs request
// details: IP address, method, URL, status code, and duration.
func RequestLoggerMiddleware(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// capture status code and bytes written
		lrw := &loggingResponseWriter{w, http.StatusOK, 0}

		ip, _, _ := net.SplitHostPort(r.RemoteAddr)

		start := time.Now()
		next.ServeHTTP(lrw, r)
		duration := time.Since(start)
		logger.Info("Request completed",
			"from", ip,
			"method", r.Method,
			"url", r.URL.String(),
			"status", lrw.statusCode,
			"duration", duration)
	}
}

// RecoveryMiddleware recovers from panics in request handlers. A panic
// produces a 500 response; it never terminates the process.
func RecoveryMiddleware(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic recovered", "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	}
}

// RateLimitMiddleware enforces a per-client rate limit using a token bucket
// per remote IP. Returns 429 Too Many Requests when the limit is exceeded.
func RateLimitMiddleware(srv *Server) MiddlewareFunc {
	return func(next http.Handler) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ip, _, _ := net.SplitHostPort(r.RemoteAddr)
			limiterInterface, _ := srv.clientLimiters.LoadOrStore(ip,
				rate.NewLimiter(srv.Options.RateLimit, srv.Options.Burst))
			limiter := limiterInterface.(*rate.Limiter)
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				writeErrorResponse(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		}
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytesWritten += n
	return n, err
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
