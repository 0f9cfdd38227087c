package handler

import (
	"github.com/gin-gonic/gin"

	"sessionguard/model"
	"sessionguard/utils"
)

// ValidateHandler exposes the per-request validation chain directly. The
// auth middleware has already run it; a request reaching this handler holds
// a valid session.
func ValidateHandler(c *gin.Context) {
	view, exists := c.Get("session_view")
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	utils.Success(c, gin.H{
		"valid":   true,
		"session": view.(*model.SessionView),
	})
}

// HealthHandler is the liveness probe.
func HealthHandler(c *gin.Context) {
	utils.Success(c, gin.H{
		"status": "ok",
	})
}
