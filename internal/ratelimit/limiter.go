// Package ratelimit limits requests per client IP with token buckets.
package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/leslieo2/go-spec-serve/internal/config"
	"github.com/leslieo2/go-spec-serve/internal/constants"
	"github.com/leslieo2/go-spec-serve/internal/server/middleware"
)

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// Status describes a client's bucket after a request.
type Status struct {
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

// Limiter keeps one token bucket per client in a go-cache. Buckets idle for
// longer than the cleanup interval expire.
type Limiter struct {
	limiters *cache.Cache
	rps      rate.Limit
	burst    int
	maxSize  int
	exempt   map[string]bool
	clock    Clock

	mu   sync.Mutex // serializes get-or-create
	stop chan struct{}
	once sync.Once
}

// New builds a limiter from cfg. Requests to the exempt paths are never
// limited.
func New(cfg config.RateLimitConfig, exempt ...string) *Limiter {
	l := newLimiter(cfg, RealClock{}, exempt...)
	go l.periodicCleanup(cfg.CleanupInterval)
	return l
}

func newLimiter(cfg config.RateLimitConfig, clock Clock, exempt ...string) *Limiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = constants.RateLimitCleanupInterval
	}
	if cfg.MaxCacheSize <= 0 {
		cfg.MaxCacheSize = constants.RateLimitMaxCacheSize
	}

	l := &Limiter{
		limiters: cache.New(cfg.CleanupInterval, cfg.CleanupInterval*2),
		rps:      rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.BurstSize,
		maxSize:  cfg.MaxCacheSize,
		exempt:   make(map[string]bool, len(exempt)),
		clock:    clock,
		stop:     make(chan struct{}),
	}
	for _, p := range exempt {
		l.exempt[p] = true
	}
	return l
}

// Close stops the cleanup goroutine.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

// periodicCleanup evicts buckets once the cache outgrows maxSize. go-cache
// has no access times so the victims are arbitrary.
func (l *Limiter) periodicCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = constants.RateLimitCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evict()
		}
	}
}

func (l *Limiter) evict() {
	size := l.limiters.ItemCount()
	if size <= l.maxSize {
		return
	}
	// Remove an extra 10% to avoid evicting on every tick.
	toRemove := size - l.maxSize + l.maxSize/10
	for key := range l.limiters.Items() {
		if toRemove <= 0 {
			return
		}
		l.limiters.Delete(key)
		toRemove--
	}
}

func (l *Limiter) bucket(id string) *rate.Limiter {
	if item, found := l.limiters.Get(id); found {
		return item.(*rate.Limiter)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if item, found := l.limiters.Get(id); found {
		return item.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(l.rps, l.burst)
	l.limiters.Set(id, limiter, cache.DefaultExpiration)
	return limiter
}

// Allow takes a token from id's bucket and reports the bucket state.
func (l *Limiter) Allow(id string) (bool, Status) {
	now := l.clock.Now()
	limiter := l.bucket(id)
	ok := limiter.AllowN(now, 1)

	tokens := limiter.TokensAt(now)
	status := Status{
		Limit:     l.burst,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		Reset:     now.Add(l.refill(float64(l.burst) - tokens)),
	}
	if !ok {
		status.RetryAfter = l.refill(1 - tokens)
	}
	return ok, status
}

// refill is how long the bucket needs to gain n tokens.
func (l *Limiter) refill(n float64) time.Duration {
	if n <= 0 || l.rps <= 0 {
		return 0
	}
	return time.Duration(n / float64(l.rps) * float64(time.Second))
}

func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.exempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		ok, status := l.Allow("ip:" + ClientIP(r))

		w.Header().Set(constants.HeaderXRateLimitLimit, strconv.Itoa(status.Limit))
		w.Header().Set(constants.HeaderXRateLimitRemaining, strconv.Itoa(status.Remaining))
		w.Header().Set(constants.HeaderXRateLimitReset, strconv.FormatInt(status.Reset.Unix(), 10))

		if !ok {
			retry := int(math.Ceil(status.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set(constants.HeaderRetryAfter, strconv.Itoa(retry))
			middleware.WriteError(w, http.StatusTooManyRequests,
				fmt.Sprintf("Rate limit exceeded. Try again in %ds", retry))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP prefers the first X-Forwarded-For entry, then X-Real-IP, then the
// connection's remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get(constants.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get(constants.HeaderXRealIP); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
