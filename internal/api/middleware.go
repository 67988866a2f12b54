package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"mastertrade/internal/auth"
)

// corsMiddleware mirrors the teacher's manual CORS handler: permissive
// origin echo plus an OPTIONS short-circuit, rather than pulling in a CORS
// middleware package none of the examples use.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// accessLogMiddleware emits one structured access-log line per request via
// zerolog, kept deliberately separate from the logrus-based business logger
// in internal/obs/logger the way the teacher's hook package keeps its
// zerolog usage apart from its primary logger.
func accessLogMiddleware() gin.HandlerFunc {
	zl := log.Logger.With().Timestamp().Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zl.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("api_access")
	}
}

// rateLimitMiddleware enforces a per-client-IP requests-per-minute budget,
// the same golang.org/x/time/rate primitive internal/ratelimit and
// internal/alert already use, keyed per caller instead of per upstream.
func rateLimitMiddleware(rpm int) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[key]
		if !ok {
			l = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
			limiters[key] = l
		}
		return l
	}

	return func(c *gin.Context) {
		if !limiterFor(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// authMiddleware validates the Bearer JWT on every protected route,
// adapted from the teacher's api/server.go authMiddleware(): split the
// Authorization header, reject blacklisted/invalid tokens, and stash the
// operator identity on the gin context for handlers and audit logging.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token := parts[1]
		if auth.IsTokenBlacklisted(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
			return
		}
		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("operator_id", claims.OperatorID)
		c.Set("email", claims.Email)
		c.Next()
	}
}

func operatorFromContext(c *gin.Context) string {
	if v, ok := c.Get("operator_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "unknown"
}
