package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/cooktodor/notifier/pkg/errors"
	"github.com/cooktodor/notifier/pkg/logger"
	"github.com/cooktodor/notifier/pkg/response"
)

// Recovery converts handler panics into a 500 envelope. http.ErrAbortHandler
// is re-raised so net/http can drop the connection quietly.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			logger.WithModule("http").Error("handler panicked",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			response.Abort(c, apperrors.ErrInternalServer)
		}()
		c.Next()
	}
}

// NotFoundHandler answers unknown routes with a NOT_FOUND envelope.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, apperrors.NewNotFound(fmt.Sprintf("route %s %s not found", c.Request.Method, c.Request.URL.Path)))
}
