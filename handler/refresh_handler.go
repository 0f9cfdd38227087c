package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"sessionguard/dto"
	"sessionguard/services"
	"sessionguard/utils"
)

// RefreshTokenHandler rotates a refresh token. The presented token's backing
// session is replaced wholesale, so it cannot be replayed afterwards.
func RefreshTokenHandler(c *gin.Context, authority *services.SessionAuthority) {
	refreshToken := utils.BearerToken(c)
	if refreshToken == "" {
		utils.Unauthorized(c, "Missing or invalid refresh token")
		return
	}

	result, err := authority.Refresh(c.Request.Context(), refreshToken, utils.DeviceMetaFromRequest(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRefreshToken):
			utils.Unauthorized(c, "Invalid refresh token")
		case errors.Is(err, services.ErrSessionExpired):
			utils.Unauthorized(c, "Session has expired")
		case errors.Is(err, services.ErrDeviceMismatch):
			utils.Unauthorized(c, "Session no longer matches this device")
		case errors.Is(err, services.ErrUserNotFound):
			utils.Unauthorized(c, "Unknown user")
		case errors.Is(err, services.ErrStoreUnavailable):
			utils.ServiceUnavailable(c, "Session store unavailable")
		default:
			utils.InternalError(c, "Failed to refresh tokens")
		}
		return
	}

	utils.Success(c, dto.ToRefreshResponse(result))
}
