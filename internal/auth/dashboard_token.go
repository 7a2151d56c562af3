package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenQueryParam carries the token for clients that cannot set headers,
// such as browser websockets
const TokenQueryParam = "token"

// DashboardToken guards the read side of the API with one shared token.
// An empty token disables the check.
type DashboardToken struct {
	token  string
	logger *zap.Logger
}

func NewDashboardToken(token string, logger *zap.Logger) *DashboardToken {
	return &DashboardToken{token: token, logger: logger}
}

// Enabled reports whether a token is configured
func (d *DashboardToken) Enabled() bool {
	return d.token != ""
}

// Valid checks the Authorization bearer header, then the token query parameter
func (d *DashboardToken) Valid(r *http.Request) bool {
	if !d.Enabled() {
		return true
	}

	provided := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(provided, "Bearer "); ok {
		provided = after
	}
	if provided == "" {
		provided = r.URL.Query().Get(TokenQueryParam)
	}

	return subtle.ConstantTimeCompare([]byte(provided), []byte(d.token)) == 1
}

// Middleware rejects requests without a valid token
func (d *DashboardToken) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !d.Valid(c.Request) {
			d.logger.Warn("Rejected dashboard request without valid token",
				zap.String("path", c.Request.URL.Path),
				zap.String("remote_addr", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: invalid or missing dashboard token"})
			return
		}
		c.Next()
	}
}
