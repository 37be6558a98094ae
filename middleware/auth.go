package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ContextSubjectKey = "current_subject"

var ErrInvalidToken = errors.New("invalid token")

// ParseToken verifies an HS256 token and returns its subject. Tokens are
// issued by the admin login service; this service only checks them.
func ParseToken(secret, tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		// only accept HMAC signing
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	// jwt lib may parse numeric subjects as float64
	switch sub := claims["sub"].(type) {
	case string:
		if sub != "" {
			return sub, nil
		}
	case float64:
		return strconv.Itoa(int(sub)), nil
	}
	return "", ErrInvalidToken
}

// AuthMiddleware requires "Authorization: Bearer <jwt>". With an empty
// secret it lets every request through.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		sub, err := ParseToken(secret, parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ContextSubjectKey, sub)
		c.Next()
	}
}

// QueryTokenAuth is AuthMiddleware for websocket upgrades, where browsers
// cannot set headers: the token travels as ?token=.
func QueryTokenAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		tokenStr := strings.TrimSpace(c.Query("token"))
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token query"})
			return
		}
		sub, err := ParseToken(secret, tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ContextSubjectKey, sub)
		c.Next()
	}
}
