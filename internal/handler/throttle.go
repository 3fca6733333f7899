package handler

import (
	"net/http"
	"sync"
	"time"

	"astroshare/equipment-service/pkg/auth"
)

// Throttle is a fixed-window per-user rate limiter for item creation.
// Windows live in memory; a restart resets them, which is acceptable for
// an abuse brake.
type Throttle struct {
	mu       sync.Mutex
	windows  map[uint64]*throttleWindow
	limit    int
	period   time.Duration
	now      func() time.Time
	lastScan time.Time
}

type throttleWindow struct {
	start time.Time
	count int
}

func NewThrottle(limit int, period time.Duration) *Throttle {
	return &Throttle{
		windows: make(map[uint64]*throttleWindow),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
}

// Allow reports whether the user may proceed and counts the attempt
func (t *Throttle) Allow(userID uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.evictStale(now)

	w, ok := t.windows[userID]
	if !ok || now.Sub(w.start) >= t.period {
		t.windows[userID] = &throttleWindow{start: now, count: 1}
		return true
	}

	if w.count >= t.limit {
		return false
	}
	w.count++
	return true
}

// evictStale drops expired windows, at most once per period
func (t *Throttle) evictStale(now time.Time) {
	if now.Sub(t.lastScan) < t.period {
		return
	}
	t.lastScan = now
	for id, w := range t.windows {
		if now.Sub(w.start) >= t.period {
			delete(t.windows, id)
		}
	}
}

// Middleware rejects over-limit requests with 429. It must run after
// required auth, since it keys on the user id.
func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := auth.GetUserFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		if !t.Allow(user.UserID) {
			writeError(w, http.StatusTooManyRequests, "Too many creation requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}
