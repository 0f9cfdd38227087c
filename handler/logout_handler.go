package handler

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"sessionguard/services"
	"sessionguard/utils"
)

// LogoutHandler ends the caller's session and blacklists the presented
// access token. Repeating a logout is a no-op, not an error.
func LogoutHandler(c *gin.Context, authority *services.SessionAuthority) {
	accessToken := utils.BearerToken(c)
	if accessToken == "" {
		utils.Unauthorized(c, "Missing or invalid access token")
		return
	}

	if err := authority.Logout(c.Request.Context(), accessToken, utils.DeviceMetaFromRequest(c)); err != nil {
		switch {
		case errors.Is(err, services.ErrStoreUnavailable):
			utils.ServiceUnavailable(c, "Session store unavailable")
		default:
			utils.Unauthorized(c, "Invalid access token")
		}
		return
	}

	utils.Success(c, gin.H{
		"message": "Successfully logged out",
	})
}

// LogoutAllHandler ends every session for the caller's user.
func LogoutAllHandler(c *gin.Context, authority *services.SessionAuthority) {
	accessToken := utils.BearerToken(c)
	if accessToken == "" {
		utils.Unauthorized(c, "Missing or invalid access token")
		return
	}

	count, err := authority.LogoutAll(c.Request.Context(), accessToken, utils.DeviceMetaFromRequest(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrStoreUnavailable):
			utils.ServiceUnavailable(c, "Session store unavailable")
		default:
			utils.Unauthorized(c, "Invalid access token")
		}
		return
	}

	utils.Success(c, gin.H{
		"message":          fmt.Sprintf("Successfully logged out of %d sessions", count),
		"revoked_sessions": count,
	})
}
