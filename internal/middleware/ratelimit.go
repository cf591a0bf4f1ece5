package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long a client's limiter survives without requests
const limiterIdleTTL = 5 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters holds one token bucket per client and drops buckets that
// have been idle for longer than idle.
type clientLimiters struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	clients   map[string]*clientLimiter
	lastSweep time.Time
	now       func() time.Time
}

func newClientLimiters(requestsPerSecond float64, burst int, idle time.Duration) *clientLimiters {
	return &clientLimiters{
		limit:   rate.Limit(requestsPerSecond),
		burst:   burst,
		idle:    idle,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

func (l *clientLimiters) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		for key, cl := range l.clients {
			if now.Sub(cl.lastSeen) >= l.idle {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}

	cl, ok := l.clients[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

func (l *clientLimiters) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// RateLimiter answers 429 once a client exceeds requestsPerSecond with a
// burst of burstSize. Clients are told apart by IP; a client idle for five
// minutes starts over with a fresh bucket.
func RateLimiter(requestsPerSecond float64, burstSize int) gin.HandlerFunc {
	return rateLimit(newClientLimiters(requestsPerSecond, burstSize, limiterIdleTTL), requestsPerSecond)
}

func rateLimit(limiters *clientLimiters, requestsPerSecond float64) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := c.ClientIP()
		if limiters.allow(client) {
			c.Next()
			return
		}

		logrus.WithFields(logrus.Fields{
			"request_id": c.GetString(RequestIDKey),
			"client_ip":  client,
			"path":       c.Request.URL.Path,
		}).Warn("Rate limit exceeded")

		abortWithError(c, http.StatusTooManyRequests, ErrorResponse{
			Error:   "Rate limit exceeded",
			Message: fmt.Sprintf("Too many requests. Limit: %.1f requests per second", requestsPerSecond),
		})
	}
}
