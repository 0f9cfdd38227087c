package middleware

import (
	"log"

	"github.com/gin-gonic/gin"

	"sessionguard/utils"
)

func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				utils.TrackError("http", "panic")
				log.Printf("panic recovered on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
				c.AbortWithStatus(500)
			}
		}()
		c.Next()
	}
}
