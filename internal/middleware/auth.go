package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/cooktodor/notifier/internal/auth"
	"github.com/cooktodor/notifier/pkg/errors"
	"github.com/cooktodor/notifier/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
	CtxRoleKey   = "userRole"
)

// AuthOption tweaks how Auth locates the access token.
type AuthOption func(*authOptions)

type authOptions struct {
	queryParam string
}

// WithQueryToken also accepts the token from the named query parameter.
// Browsers cannot attach headers to EventSource or WebSocket handshakes.
func WithQueryToken(param string) AuthOption {
	return func(o *authOptions) {
		o.queryParam = strings.TrimSpace(param)
	}
}

// Auth enforces JWT authentication using the supplied JWT service.
func Auth(jwt *iauth.JWTService, opts ...AuthOption) gin.HandlerFunc {
	var cfg authOptions
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok && cfg.queryParam != "" {
			token = strings.TrimSpace(c.Query(cfg.queryParam))
			ok = token != ""
		}
		if !ok {
			response.Abort(c, errors.ErrUnauthorized)
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Abort(c, errors.ErrUnauthorized)
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxRoleKey, claims.Role)

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	if len(header) < 8 || !strings.EqualFold(header[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}
