package middleware

import (
	"net/http"
	"slotkeeper/pkg/logger"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const HoldOwnerHeader = "X-Hold-Owner"

type KeyExtractor func(r *http.Request) string

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyRateLimiter throttles requests per caller key, e.g. the hold owner placing holds.
type KeyRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*keyedLimiter
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	extractor KeyExtractor
	log       *logger.Logger
	stopCh    chan struct{}
}

// NewKeyRateLimiter allows requests per window for each key, with the full budget usable as a burst.
func NewKeyRateLimiter(requests int, window time.Duration, extractor KeyExtractor, log *logger.Logger) *KeyRateLimiter {
	if extractor == nil {
		extractor = DefaultOwnerExtractor
	}
	limiter := &KeyRateLimiter{
		limiters:  make(map[string]*keyedLimiter),
		limit:     rate.Every(window / time.Duration(requests)),
		burst:     requests,
		idleTTL:   window,
		extractor: extractor,
		log:       log,
		stopCh:    make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

func (rl *KeyRateLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			for key, l := range rl.limiters {
				if time.Since(l.lastSeen) > rl.idleTTL {
					delete(rl.limiters, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *KeyRateLimiter) Stop() {
	close(rl.stopCh)
}

func (rl *KeyRateLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}

	rl.mu.Lock()
	l, ok := rl.limiters[key]
	if !ok {
		l = &keyedLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = l
	}
	l.lastSeen = time.Now()
	rl.mu.Unlock()

	return l.limiter.Allow()
}

// RateLimit applies limiter to state-changing requests only; reads are pure and never throttled.
func RateLimit(limiter *KeyRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := limiter.extractor(r)
			if !limiter.Allow(key) {
				limiter.log.Warn("Rate limit exceeded",
					"request_id", RequestIDFromContext(r.Context()),
					"key", key,
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"code":"RATE_LIMITED","error":"Rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func DefaultOwnerExtractor(r *http.Request) string {
	return r.Header.Get(HoldOwnerHeader)
}
