package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"alumnihub.org/internal/audit"
	"alumnihub.org/internal/ids"
	"alumnihub.org/internal/obs"
)

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// RequestID assigns a ULID to every request, echoes it in X-Request-ID and
// makes it available to error payloads and audit records.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if rid == "" || len(rid) > 64 {
			rid = ids.New()
		}
		w.Header().Set("X-Request-ID", rid)
		ctx := audit.WithRequestID(r.Context(), rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingJSON emits one structured line per request.
func LoggingJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		obs.LogRequest(map[string]any{
			"ts":          time.Now().UTC().Format(time.RFC3339Nano),
			"level":       "info",
			"msg":         "request_complete",
			"request_id":  audit.RequestIDFromContext(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      sw.code,
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"remote":      clientIP(r),
			"user_agent":  r.UserAgent(),
		})
	})
}

// SecurityHeaders sets the standard hardening headers. The API serves JSON
// only, so the CSP can stay strict.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "0")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy",
			"default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// CORS allows browser clients from local dev origins. Extend allowedOrigin
// for deployed frontends.
func CORS(next http.Handler) http.Handler {
	allowedMethods := "GET,POST,PATCH,DELETE,OPTIONS"
	allowedHeaders := "Content-Type,Authorization,X-Request-ID"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && allowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
		w.Header().Set("Access-Control-Max-Age", "600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MaxBodyBytes limits request body size.
func MaxBodyBytes(next http.Handler, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next.ServeHTTP(w, r)
	})
}

// RateLimit applies a token bucket per client IP.
func RateLimit(next http.Handler, burst int, perSecond int) http.Handler {
	type bucket struct {
		lim *rate.Limiter
		ts  time.Time
	}
	var (
		mu      sync.Mutex
		buckets = make(map[string]*bucket)
		ttl     = 5 * time.Minute
	)
	ticker := time.NewTicker(1 * time.Minute)
	go func() {
		for range ticker.C {
			now := time.Now()
			mu.Lock()
			for k, b := range buckets {
				if now.Sub(b.ts) > ttl {
					delete(buckets, k)
				}
			}
			mu.Unlock()
		}
	}()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ip == "" {
			ip = "unknown"
		}
		mu.Lock()
		b, ok := buckets[ip]
		if !ok {
			b = &bucket{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
			buckets[ip] = b
		}
		b.ts = time.Now()
		allowed := b.lim.Allow()
		mu.Unlock()
		if !allowed {
			w.Header().Set("Retry-After", "1")
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	// X-Forwarded-For support (first IP)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func allowedOrigin(o string) bool {
	return strings.HasPrefix(o, "http://localhost:") || strings.HasPrefix(o, "http://127.0.0.1:")
}
