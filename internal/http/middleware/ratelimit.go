package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/wolfman30/contractor-relay/pkg/logging"
)

// IPLimiter is a per-IP token bucket used in front of the public webhook.
type IPLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int
	now     func() time.Time
	idle    time.Duration
}

type bucket struct {
	tokens   float64
	lastTime time.Time
}

// NewIPLimiter allows rate requests/sec per IP with the given burst.
func NewIPLimiter(rate float64, burst int) *IPLimiter {
	if rate <= 0 {
		rate = 20
	}
	if burst <= 0 {
		burst = int(rate * 2)
	}
	return &IPLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
		idle:    10 * time.Minute,
	}
}

// Allow spends one token from ip's bucket.
func (l *IPLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastTime: now}
		l.buckets[ip] = b
	}
	b.tokens += now.Sub(b.lastTime).Seconds() * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.lastTime = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Sweep drops buckets idle for longer than the idle window and reports how
// many remain.
func (l *IPLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idle)
	for ip, b := range l.buckets {
		if b.lastTime.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
	return len(l.buckets)
}

// Handler rejects requests over the limit with 429. The client IP comes from
// chi's RealIP when present.
func (l *IPLimiter) Handler(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	var sweepOnce sync.Once
	return func(next http.Handler) http.Handler {
		sweepOnce.Do(func() {
			go func() {
				ticker := time.NewTicker(5 * time.Minute)
				defer ticker.Stop()
				for range ticker.C {
					l.Sweep()
				}
			}()
		})
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !l.Allow(ip) {
				logger.Warn("webhook rate limit exceeded", "remote_ip", ip)
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
