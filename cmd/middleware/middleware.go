package middleware

import (
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"eventsphere/internal/auth"
	"eventsphere/internal/dto"
	"eventsphere/internal/metrics"
)

const (
	userIDKey = "identity.user_id"
	roleKey   = "identity.role"
)

func LoggingMiddleware(log *zerolog.Logger) gin.HandlerFunc {
	return func(c *ginext.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		latency := time.Since(start)
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).
			Observe(latency.Seconds())

		ev := log.Info()
		if status >= 500 {
			ev = log.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Msg("request handled")
	}
}

// Auth resolves the bearer token into an identity and stores it on the
// request context. Requests without a valid token are rejected with 401.
func Auth(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *ginext.Context) {
		token, err := auth.TokenFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			dto.UnauthorizedError(c)
			return
		}
		id, err := verifier.Resolve(token)
		if err != nil {
			dto.UnauthorizedError(c)
			return
		}
		c.Set(userIDKey, id.UserID)
		c.Set(roleKey, id.Role)
		c.Next()
	}
}

func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *ginext.Context) {
		if _, ok := UserID(c); !ok {
			dto.UnauthorizedError(c)
			return
		}
		if !slices.Contains(roles, c.GetString(roleKey)) {
			dto.ForbiddenError(c)
			return
		}
		c.Next()
	}
}

func UserID(c *ginext.Context) (string, bool) {
	id := c.GetString(userIDKey)
	return id, id != ""
}
