package auth

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// clientLimiter はクライアントごとのリミッターと最終アクセス時刻です。
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はクライアント IP ごとのトークンバケットでリクエスト数を制限します。
type RateLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter は 1 分あたり perMinute 回までを許可する RateLimiter を作成します。
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	return &RateLimiter{
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
		idle:    10 * time.Minute,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// Middleware はレート制限ミドルウェアを返します。
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !rl.allow(ip) {
			slog.Warn("rate limit exceeded", slog.String("ip", ip), slog.String("path", c.FullPath()))
			c.Header("Retry-After", strconv.Itoa(rl.retryAfterSeconds()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    "RATE_LIMIT_EXCEEDED",
				"message": "Too many requests, please try again later",
			})
			return
		}
		c.Next()
	}
}

// ClientCount は管理中のクライアント数を返します。
func (rl *RateLimiter) ClientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweepLocked(now)

	cl, ok := rl.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = cl
	}
	cl.lastAccess = now
	return cl.limiter.AllowN(now, 1)
}

// sweepLocked は idle を超えてアクセスのないエントリを削除します。
func (rl *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.idle {
		return
	}
	rl.lastSweep = now
	for ip, cl := range rl.clients {
		if now.Sub(cl.lastAccess) > rl.idle {
			delete(rl.clients, ip)
		}
	}
}

// retryAfterSeconds は 1 トークンが補充されるまでの秒数です。
func (rl *RateLimiter) retryAfterSeconds() int {
	sec := int(math.Ceil(1.0 / float64(rl.limit)))
	if sec < 1 {
		sec = 1
	}
	return sec
}
