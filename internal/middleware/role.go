package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cooktodor/notifier/internal/models"
	"github.com/cooktodor/notifier/pkg/errors"
	"github.com/cooktodor/notifier/pkg/metrics"
	"github.com/cooktodor/notifier/pkg/response"
)

// RequireRole lets the request through when the authenticated role is one of
// roles. An empty list admits any role the platform knows about.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[strings.ToUpper(strings.TrimSpace(role))] = struct{}{}
	}

	return func(c *gin.Context) {
		if c.GetString(CtxUserIDKey) == "" {
			response.Abort(c, errors.ErrUnauthorized)
			return
		}

		route := c.FullPath()
		role := strings.ToUpper(c.GetString(CtxRoleKey))

		ok := models.IsKnownRole(role)
		if ok && len(allowed) > 0 {
			_, ok = allowed[role]
		}
		if !ok {
			metrics.RoleChecks.WithLabelValues(route, "denied").Inc()
			response.Abort(c, errors.ErrForbidden)
			return
		}

		metrics.RoleChecks.WithLabelValues(route, "allowed").Inc()
		c.Next()
	}
}
