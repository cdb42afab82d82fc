package rest

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/snappy-im/snappy-server/internal/service"
	"golang.org/x/time/rate"
)

type ctxClaimsKey struct{}

// RequestLogger logs each request with latency and status in the structured
// format the rest of the service uses.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("remote_ip", clientIP(r)),
			)
		})
	}
}

// Authenticator requires a valid Bearer token and stores the claims in the
// request context.
func Authenticator(tokens *service.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				respondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := tokens.Verify(raw)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxClaimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// claimsFrom returns the authenticated claims, if the route went through
// the Authenticator.
func claimsFrom(ctx context.Context) (*service.TokenClaims, bool) {
	claims, ok := ctx.Value(ctxClaimsKey{}).(*service.TokenClaims)
	return claims, ok
}

// authedUserID is the uuid form of the token subject.
func authedUserID(ctx context.Context) (uuid.UUID, bool) {
	claims, ok := claimsFrom(ctx)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// ipLimiter hands out one token bucket per client IP. The LRU bounds memory
// instead of letting the map grow with every address ever seen.
type ipLimiter struct {
	buckets *lru.Cache[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
}

func newIPLimiter(limit rate.Limit, burst int) *ipLimiter {
	buckets, _ := lru.New[string, *rate.Limiter](10_000)
	return &ipLimiter{
		buckets: buckets,
		limit:   limit,
		burst:   burst,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	lim, ok := l.buckets.Get(ip)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.buckets.Add(ip, lim)
	}
	return lim.Allow()
}

// RateLimit rejects clients that exceed perMinute sustained requests.
func RateLimit(perMinute int) func(http.Handler) http.Handler {
	limiter := newIPLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
	return limitWith(limiter)
}

// AuthRateLimit is the tighter bucket in front of credential endpoints:
// perWindow attempts per window per IP.
func AuthRateLimit(perWindow int, window time.Duration) func(http.Handler) http.Handler {
	limiter := newIPLimiter(rate.Limit(float64(perWindow)/window.Seconds()), perWindow)
	return limitWith(limiter)
}

func limitWith(limiter *ipLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clientIP(r)) {
				respondError(w, http.StatusTooManyRequests, "too many requests, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
