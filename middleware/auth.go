package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	config "github.com/phillip/giftfund-go/config"
)

type claims struct {
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies the bearer token and exposes the caller's identity
// to handlers as context strings. Token issuance lives in the auth service.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		var cl claims
		token, err := jwt.ParseWithClaims(tokenStr, &cl, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		if cl.UserID == "" {
			cl.UserID = cl.Subject
		}

		c.Set("user_id", cl.UserID)
		c.Set("role", cl.Role)
		c.Set("email", cl.Email)
		c.Set("phone_number", cl.PhoneNumber)
		c.Next()
	}
}

// IsAdmin is the single place role strings are interpreted.
func IsAdmin(c *gin.Context) bool {
	return c.GetString("role") == "admin"
}
