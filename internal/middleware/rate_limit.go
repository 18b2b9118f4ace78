package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter 對公開的邀請端點做每個 IP 的限流，避免邀請碼被暴力猜測
type IPRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	reqPerMin int
	burst     int
	ttl       time.Duration
}

// NewIPRateLimiter 建立限流器，ctx 結束時停止清理
func NewIPRateLimiter(ctx context.Context, reqPerMin, burst int, ttl time.Duration) *IPRateLimiter {
	rl := &IPRateLimiter{
		visitors:  make(map[string]*visitor),
		reqPerMin: reqPerMin,
		burst:     burst,
		ttl:       ttl,
	}
	go rl.cleanupLoop(ctx)
	return rl
}

func (rl *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, ok := rl.visitors[ip]; ok {
		v.lastSeen = time.Now()
		return v.limiter
	}

	rps := rate.Limit(float64(rl.reqPerMin) / 60.0)
	lim := rate.NewLimiter(rps, rl.burst)
	rl.visitors[ip] = &visitor{limiter: lim, lastSeen: time.Now()}
	return lim
}

func (rl *IPRateLimiter) cleanupLoop(ctx context.Context) {
	interval := rl.ttl
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *IPRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if time.Since(v.lastSeen) > rl.ttl {
			delete(rl.visitors, ip)
		}
	}
}

func RateLimitByIP(rl *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.getLimiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "請求過於頻繁，請稍後再試",
				"code":  "rate_limited",
			})
			return
		}
		c.Next()
	}
}
