package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/charlesng35/feedsync/pkg/errors"
	"github.com/charlesng35/feedsync/pkg/logger"
	"github.com/charlesng35/feedsync/pkg/response"
)

// Recovery converts panics into a 500 response and logs the error.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithModule("http").Error("panic",
					zap.String("path", c.Request.URL.Path),
					zap.Any("error", r),
				)
				// Avoid leaking internals to clients
				c.Abort()
				response.Error(c, apperrors.New(apperrors.KindServer, "Internal server error", http.StatusInternalServerError))
			}
		}()
		c.Next()
	}
}

// NotFoundHandler returns a JSON 404 response for unknown routes.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, apperrors.New(apperrors.KindValidation, fmt.Sprintf("route %s not found", c.Request.URL.Path), http.StatusNotFound))
}
