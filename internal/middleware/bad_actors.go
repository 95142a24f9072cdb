package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// Scanner probe paths seen in the access logs. None of them overlap with the
// API surface, so a plain substring match is enough.
var probePaths = []string{
	".env", "php", "login", "mysql", "admin", "cgi-bin",
	"wp-admin", "xmlrpc.php", "config", "passwd", "shadow", "backup",
	"cmd.exe", "shell", "exec", "actuator", "geoserver", "goform",
	"manager/html", "web-console", "favicon.ico", "powershell",
}

func BlockBadActorsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestPath := c.Request.URL.Path

		for _, path := range probePaths {
			if strings.Contains(requestPath, path) {
				c.JSON(403, gin.H{"error": "Forbidden"})
				c.Abort()
				return
			}
		}
		c.Next()
	}
}
