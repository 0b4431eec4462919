package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// AdminKeyHeader carries the plaintext admin key
const AdminKeyHeader = "X-Admin-Key"

// AdminGate rejects requests whose admin key does not match the bcrypt hash.
// With no hash configured every admin route answers 503.
func AdminGate(keyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if keyHash == "" {
			respondError(c, http.StatusServiceUnavailable, "ADMIN_DISABLED", "Admin routes are not configured")
			c.Abort()
			return
		}

		key := c.GetHeader(AdminKeyHeader)
		if key == "" || bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)) != nil {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid admin key")
			c.Abort()
			return
		}
		c.Next()
	}
}
