package auth

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/TimMatthis/auzguard/pkg/api"
)

// ActorLimiter enforces per-actor (org_id/actor_id) request rate limiting
// at the HTTP layer, one token bucket per actor. On rate limit exceeded it
// returns 429 with a Retry-After header.
type ActorLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewActorLimiter creates a per-actor limiter allowing rps requests/second
// with the given burst.
func NewActorLimiter(rps float64, burst int) *ActorLimiter {
	return &ActorLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (al *ActorLimiter) limiterFor(actorID string) *rate.Limiter {
	al.mu.Lock()
	defer al.mu.Unlock()
	l, ok := al.limiters[actorID]
	if !ok {
		l = rate.NewLimiter(al.rps, al.burst)
		al.limiters[actorID] = l
	}
	return l
}

// RateLimitMiddleware enforces per-actor rate limiting. It extracts the
// actor ID from the authenticated Principal (falls back to remote IP).
func (al *ActorLimiter) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			actorID = host
		}
		if principal, err := GetPrincipal(r.Context()); err == nil {
			actorID = fmt.Sprintf("%s/%s", principal.GetOrgID(), principal.GetID())
		}

		if !al.limiterFor(actorID).Allow() {
			api.WriteTooManyRequests(w, int(time.Second.Seconds()))
			return
		}

		next.ServeHTTP(w, r)
	})
}
