package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rtmpscout/internal/core/services"
	apperrors "rtmpscout/pkg/errors"
)

const operatorKey = "operator"

// AuthMiddleware requires a valid bearer token on every request.
func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, services.ErrExpiredToken) {
				msg = "token expired"
			}
			abortUnauthorized(c, msg)
			return
		}

		c.Set(operatorKey, claims.Operator)
		c.Next()
	}
}

// Operator returns the authenticated operator, empty when auth is disabled.
func Operator(c *gin.Context) string {
	return c.GetString(operatorKey)
}

func abortUnauthorized(c *gin.Context, message string) {
	appErr := apperrors.NewUnauthorizedError(message)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   string(appErr.Code),
		"message": appErr.Message,
	})
}
