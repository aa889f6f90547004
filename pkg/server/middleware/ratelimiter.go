package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/milan604/feedclient/pkg/response"
)

// RateLimitConfig encapsulates both configuration and runtime state for per-IP rate limiting.
type RateLimitConfig struct {
	Enabled         bool
	RPS             float64
	Burst           int
	CleanupInterval time.Duration

	limit   rate.Limit
	clients sync.Map // map[string]*visitor
	stop    chan struct{}
	once    sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// NewRateLimitConfig creates a RateLimitConfig. With a cleanup interval, limiters idle for longer
// than it are dropped in the background until Stop is called.
func NewRateLimitConfig(enabled bool, rps float64, burst int, cleanupInterval time.Duration) *RateLimitConfig {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimitConfig{
		Enabled:         enabled,
		RPS:             rps,
		Burst:           burst,
		CleanupInterval: cleanupInterval,
		limit:           rate.Limit(rps),
		stop:            make(chan struct{}),
	}
	if enabled && cleanupInterval > 0 {
		go rl.cleanupLoop()
	}
	return rl
}

// Stop ends the cleanup goroutine.
func (rl *RateLimitConfig) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimitConfig) getLimiter(ip string, now time.Time) *rate.Limiter {
	v, _ := rl.clients.LoadOrStore(ip, &visitor{limiter: rate.NewLimiter(rl.limit, rl.Burst)})
	vis := v.(*visitor)
	vis.mu.Lock()
	vis.lastSeen = now
	vis.mu.Unlock()
	return vis.limiter
}

func (rl *RateLimitConfig) cleanupLoop() {
	t := time.NewTicker(rl.CleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case now := <-t.C:
			rl.evictIdle(now)
		}
	}
}

func (rl *RateLimitConfig) evictIdle(now time.Time) {
	rl.clients.Range(func(key, value any) bool {
		vis := value.(*visitor)
		vis.mu.Lock()
		idle := now.Sub(vis.lastSeen) > rl.CleanupInterval
		vis.mu.Unlock()
		if idle {
			rl.clients.Delete(key)
		}
		return true
	})
}

// remoteIP prefers the first X-Forwarded-For hop, then the connection's address.
func remoteIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil {
		return host
	}
	return c.ClientIP()
}

// Middleware enforces the per-IP limit, answering 429 with a Retry-After hint.
func (rl *RateLimitConfig) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Enabled {
			c.Next()
			return
		}
		lim := rl.getLimiter(remoteIP(c), time.Now())
		if !lim.Allow() {
			wait := 1
			if rl.RPS > 0 {
				wait = max(int(1/rl.RPS), 1)
			}
			c.Header("Retry-After", strconv.Itoa(wait))
			response.Detail(c, http.StatusTooManyRequests, "Request was throttled.", "throttled")
			return
		}
		c.Next()
	}
}
