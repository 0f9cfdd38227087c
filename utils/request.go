package utils

import (
	"strings"

	"github.com/gin-gonic/gin"

	"sessionguard/model"
)

// BearerToken extracts the token from the Authorization header, or ""
func BearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(authHeader, "Bearer ")
}

// DeviceMetaFromRequest collects the connection metadata the fingerprint is
// derived from. Missing headers come back as empty strings.
func DeviceMetaFromRequest(c *gin.Context) model.DeviceMeta {
	return model.DeviceMeta{
		UserAgent:      c.Request.UserAgent(),
		AcceptLanguage: c.GetHeader("Accept-Language"),
		AcceptEncoding: c.GetHeader("Accept-Encoding"),
		IPAddress:      c.ClientIP(),
	}
}
