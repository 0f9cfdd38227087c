package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"sessionguard/services"
	"sessionguard/utils"
)

// GetActiveSessions lists the caller's live sessions, flagging the one the
// request was made with.
func GetActiveSessions(c *gin.Context, authority *services.SessionAuthority) {
	sessions, err := authority.Sessions(c.Request.Context(), utils.BearerToken(c))
	if err != nil {
		if errors.Is(err, services.ErrStoreUnavailable) {
			utils.ServiceUnavailable(c, "Session store unavailable")
			return
		}
		utils.Unauthorized(c, "Invalid access token")
		return
	}

	utils.Success(c, gin.H{
		"sessions": sessions,
	})
}

// RevokeSessionHandler ends one specific session belonging to the caller.
func RevokeSessionHandler(c *gin.Context, authority *services.SessionAuthority) {
	sessionID := c.Param("sessionId")
	if sessionID == "" {
		utils.BadRequest(c, "Missing session id")
		return
	}

	err := authority.RevokeSession(c.Request.Context(), utils.BearerToken(c), sessionID, utils.DeviceMetaFromRequest(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionExpired):
			utils.NotFound(c, "Session not found")
		case errors.Is(err, services.ErrStoreUnavailable):
			utils.ServiceUnavailable(c, "Session store unavailable")
		default:
			utils.Unauthorized(c, "Invalid access token")
		}
		return
	}

	utils.Success(c, gin.H{
		"message": "Session revoked",
	})
}

// SessionActivityHandler returns recent security events for the caller.
func SessionActivityHandler(c *gin.Context, emitter *services.AuditEmitter) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	events, err := emitter.RecentActivity(c.Request.Context(), userID.(string), 20)
	if err != nil {
		utils.InternalError(c, "Failed to fetch activity")
		return
	}

	utils.Success(c, gin.H{
		"activity": events,
	})
}
