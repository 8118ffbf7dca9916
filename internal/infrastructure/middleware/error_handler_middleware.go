package middleware

import (
	"net/http"

	apperrors "workhub/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware renders the last error pushed with c.Error as the
// {error, message} envelope. Handlers never write error bodies themselves.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		log := LoggerFrom(c, logger)

		appErr := apperrors.GetAppError(err)
		if appErr == nil {
			log.Errorw("unhandled error",
				"error", err.Error(),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
			c.JSON(http.StatusInternalServerError, apperrors.Envelope{
				Error:   string(apperrors.ErrCodeInternal),
				Message: "Internal server error",
			})
			return
		}

		fields := []interface{}{
			"code", appErr.Code,
			"message", appErr.Message,
			"status", appErr.Status(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		}
		if appErr.Cause != nil {
			fields = append(fields, "cause", appErr.Cause.Error())
		}
		fields = append(fields, appErr.Fields...)
		if appErr.Status() >= http.StatusInternalServerError {
			log.Errorw("application error", fields...)
		} else {
			log.Infow("request rejected", fields...)
		}

		c.JSON(appErr.Status(), appErr.Envelope())
	}
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				LoggerFrom(c, logger).Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, apperrors.Envelope{
					Error:   string(apperrors.ErrCodeInternal),
					Message: "Internal server error",
				})
			}
		}()

		c.Next()
	}
}

// NoRouteHandler answers unknown routes with the envelope.
func NoRouteHandler(c *gin.Context) {
	_ = c.Error(apperrors.NewNotFoundError("Route not found"))
}
