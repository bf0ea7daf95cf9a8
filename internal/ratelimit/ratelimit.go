// Package ratelimit throttles requests per client IP.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"golang.org/x/time/rate"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PerIP keeps one token bucket per client IP.
type PerIP struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*client
}

// PerMinute allows n requests per minute per IP, with a burst of n. n <= 0
// disables limiting.
func PerMinute(n int) *PerIP {
	if n <= 0 {
		return &PerIP{limit: rate.Inf, clients: make(map[string]*client)}
	}
	return &PerIP{
		limit:   rate.Every(time.Minute / time.Duration(n)),
		burst:   n,
		clients: make(map[string]*client),
	}
}

// Allow consumes one token for ip.
func (p *PerIP) Allow(ip string) bool {
	if p.limit == rate.Inf {
		return true
	}
	p.mu.Lock()
	c, ok := p.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.clients[ip] = c
	}
	c.lastSeen = time.Now()
	p.mu.Unlock()
	return c.limiter.Allow()
}

// Forget drops buckets idle for longer than maxIdle.
func (p *PerIP) Forget(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for ip, c := range p.clients {
		if c.lastSeen.Before(cutoff) {
			delete(p.clients, ip)
			n++
		}
	}
	return n
}

// Middleware rejects requests over the limit. onLimited renders the
// rejection; nil sends a bare 429.
func (p *PerIP) Middleware(onLimited gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		glog.V(1).Infof("ratelimit: %s %s throttled", c.Request.Method, c.FullPath())
		if onLimited != nil {
			onLimited(c)
		} else {
			c.Status(http.StatusTooManyRequests)
		}
		c.Abort()
	}
}
