package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sessionguard/services"
	"sessionguard/utils"
)

// AuthMiddleware runs the full per-request validation chain (signature,
// blacklist, session record, fingerprint) and stores the resulting view in
// the context for handlers.
func AuthMiddleware(authority *services.SessionAuthority) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := utils.BearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid token"})
			c.Abort()
			return
		}

		view, err := authority.Validate(c.Request.Context(), token, utils.DeviceMetaFromRequest(c))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": authErrorMessage(err)})
			c.Abort()
			return
		}

		c.Set("user_id", view.UserID)
		c.Set("session_id", view.SessionID)
		c.Set("session_view", view)
		c.Next()
	}
}

func authErrorMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrExpiredToken):
		return "Token has expired"
	case errors.Is(err, services.ErrTokenRevoked):
		return "Token has been invalidated"
	case errors.Is(err, services.ErrTokenTypeMismatch):
		return "Invalid token type"
	case errors.Is(err, services.ErrSessionExpired):
		return "Session has expired"
	case errors.Is(err, services.ErrDeviceMismatch):
		return "Session no longer matches this device"
	default:
		return "Invalid token"
	}
}
