package httputil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/submanage/internal/access"
	"github.com/bissquit/submanage/internal/domain"
	"github.com/bissquit/submanage/internal/pkg/ctxlog"
	"golang.org/x/time/rate"
)

// CORSMiddleware creates CORS middleware that handles preflight requests
// and adds appropriate CORS headers to responses.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	originsSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originsSet[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if originsSet[origin] || originsSet["*"] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// TokenValidator turns a bearer token into a session.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (access.Session, error)
}

// AuthMiddleware validates the bearer token and stores the resulting
// session in the request context.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				ErrorWithKind(w, http.StatusUnauthorized, domain.KindUnauthorized, "missing or malformed authorization header")
				return
			}

			session, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				if !errors.Is(err, domain.ErrUnauthorized) {
					HandleError(r.Context(), w, err, nil)
					return
				}
				ctxlog.FromContext(r.Context()).Debug("token rejected", "error", err)
				ErrorWithKind(w, http.StatusUnauthorized, domain.KindUnauthorized, "invalid or expired token")
				return
			}

			logger := ctxlog.FromContext(r.Context()).With("actor_id", session.ActorID)
			ctx := access.WithSession(r.Context(), session)
			ctx = ctxlog.WithLogger(ctx, logger)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// RequirePermission rejects requests whose session may not perform action.
// Services check permissions again; this only short-circuits whole route groups.
func RequirePermission(action access.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := access.FromContext(r.Context())
			if !ok {
				ErrorWithKind(w, http.StatusUnauthorized, domain.KindUnauthorized, "unauthorized")
				return
			}

			if err := session.Require(action, time.Now()); err != nil {
				HandleError(r.Context(), w, err, nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Session returns the request session, writing a 401 when there is none.
func Session(w http.ResponseWriter, r *http.Request) (access.Session, bool) {
	session, ok := access.FromContext(r.Context())
	if !ok {
		ErrorWithKind(w, http.StatusUnauthorized, domain.KindUnauthorized, "unauthorized")
		return access.Session{}, false
	}
	return session, true
}

// limiterIdleTTL is how long a client bucket survives without requests.
const limiterIdleTTL = 10 * time.Minute

// RateLimiter keeps one token bucket per client address. Buckets idle for
// longer than the refill time are dropped when a new client shows up.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rps      rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a per-client limiter allowing rps requests per
// second with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	idle := limiterIdleTTL
	// A bucket must not be forgotten before it would have refilled.
	if rps > 0 {
		if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		idle:     idle,
		now:      time.Now,
	}
}

func (l *RateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.limiters[key]
	if !ok {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) >= l.idle {
				delete(l.limiters, k)
			}
		}
		entry = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// size reports the number of tracked clients.
func (l *RateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Middleware rejects requests over the limit with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.limiter(clientKey(r)).Allow() {
			w.Header().Set("Retry-After", "1")
			Error(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
