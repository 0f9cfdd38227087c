package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"sessionguard/dto"
	"sessionguard/model"
	"sessionguard/services"
	"sessionguard/utils"
)

// LoginHandler turns a verified identity assertion into a device session
// with an access/refresh token pair. Password checking happened upstream in
// the identity provider. An assertion that does not resolve to a user is
// handled by the authority so it lands in the audit trail as login_failed.
func LoginHandler(c *gin.Context, authority *services.SessionAuthority) {
	var loginReq model.LoginRequest
	if err := c.ShouldBindJSON(&loginReq); err != nil {
		utils.BadRequest(c, "Invalid Request")
		return
	}

	result, err := authority.Login(c.Request.Context(), loginReq.Identity, utils.DeviceMetaFromRequest(c), loginReq.RememberMe)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			utils.Unauthorized(c, "Unknown user")
		case errors.Is(err, services.ErrStoreUnavailable):
			utils.ServiceUnavailable(c, "Session store unavailable")
		default:
			utils.InternalError(c, "Failed to establish session")
		}
		return
	}

	utils.Success(c, dto.ToLoginResponse(result))
}
