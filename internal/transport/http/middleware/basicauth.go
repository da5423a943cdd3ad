package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const errUnauthorizedBasic = "Unauthorized"

// BasicAuth gates the schedule-submit endpoint with the operator
// credentials named in spec §6 (API_USERNAME/API_PASSWORD). Constant-time
// comparison avoids leaking credential length/prefix via timing.
func BasicAuth(username, password string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(user), []byte(username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="scheduler"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorizedBasic})
			return
		}
		c.Next()
	}
}
