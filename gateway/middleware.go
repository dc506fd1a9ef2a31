package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	claimsKey       = "claims"
)

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// ipLimiter keeps one token bucket per client address.
type ipLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	visitorIdle     = 10 * time.Minute
	visitorSweepLen = 4096
)

func newIPLimiter(perSecond float64, burst int) *ipLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &ipLimiter{visitors: make(map[string]*visitor), limit: limit, burst: burst}
}

func (l *ipLimiter) allow(ip string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.visitors) >= visitorSweepLen {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorIdle {
				delete(l.visitors, k)
			}
		}
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *ipLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "Too many requests",
			})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(header)
}

// authenticate parses the bearer token if one was sent. It aborts with 401
// on a token that does not verify and reports whether the chain continues.
func (g *Gateway) authenticate(c *gin.Context) bool {
	token := bearerToken(c)
	if token == "" {
		return true
	}
	claims, err := g.services.Auth.Tokens().Parse(token)
	if err != nil {
		abortWithMessage(c, http.StatusUnauthorized, "Invalid token")
		return false
	}
	c.Set(claimsKey, claims)
	return true
}

func (g *Gateway) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.authenticate(c) {
			c.Next()
		}
	}
}

// requireUser admits any verified token bound to a user record.
func (g *Gateway) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.authenticate(c) {
			return
		}
		claims := claimsFrom(c)
		if claims == nil || claims.IsAdmin() {
			abortWithMessage(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		c.Next()
	}
}

func (g *Gateway) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.authenticate(c) {
			return
		}
		claims := claimsFrom(c)
		if claims == nil {
			abortWithMessage(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !claims.IsAdmin() {
			abortWithMessage(c, http.StatusForbidden, "Unauthorized")
			return
		}
		c.Next()
	}
}

func claimsFrom(c *gin.Context) *auth.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

func abortWithMessage(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}
