package middleware

import (
	"strings"

	"workhub/internal/core/domain"
	"workhub/internal/core/ports"
	apperrors "workhub/pkg/errors"
	rlog "workhub/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDKey = "user_id"
	loggerKey = "logger"
)

// PublicPaths are the /api routes reachable without a token. Matching is
// exact: a trailing slash or extra segment makes a path protected.
var PublicPaths = map[string]struct{}{
	"/api/auth/sign_up":                  {},
	"/api/auth/log_in":                   {},
	"/api/auth/forgot_password":          {},
	"/api/auth/reset_password":           {},
	"/api/auth/verify_email":             {},
	"/api/email_change_requests/confirm": {},
}

func isPublic(path string) bool {
	if path != "/api" && !strings.HasPrefix(path, "/api/") {
		return true
	}
	_, ok := PublicPaths[path]
	return ok
}

// AuthMiddleware gates every /api path outside PublicPaths on a valid
// bearer token. Other paths (health, metrics, websocket) pass through.
func AuthMiddleware(tokens ports.TokenService, logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isPublic(c.Request.URL.Path) {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			_ = c.Error(apperrors.NewUnauthorizedError("No token provided"))
			c.Abort()
			return
		}

		userID, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			LoggerFrom(c, logger).Debugw("token rejected", "path", c.Request.URL.Path, "error", err)
			_ = c.Error(apperrors.NewUnauthorizedError("Invalid token"))
			c.Abort()
			return
		}

		c.Set(userIDKey, userID)
		c.Request = c.Request.WithContext(rlog.WithUserID(c.Request.Context(), string(userID)))
		c.Set(loggerKey, LoggerFrom(c, logger).With("user_id", userID))
		c.Next()
	}
}

// CurrentUser returns the id stored by AuthMiddleware.
func CurrentUser(c *gin.Context) (domain.UserID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(domain.UserID)
	return id, ok && id != ""
}

// LoggerFrom returns the request-scoped logger, or fallback when none is set.
func LoggerFrom(c *gin.Context, fallback *zap.SugaredLogger) *zap.SugaredLogger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(*zap.SugaredLogger); ok {
			return l
		}
	}
	return fallback
}
