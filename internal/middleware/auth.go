package middleware

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Moonlightintherain/q/internal/models"
	"github.com/Moonlightintherain/q/pkg/logger"
)

// AuthMiddleware lets through only callers whose account already exists in
// the ledger.
func AuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := GetUserIDFromGinContext(c)
		if err != nil {
			logger.Error("%v", err)
			c.AbortWithStatus(500)
			return
		}

		exists, err := models.CheckIfUserExistsByID(db, userID)
		if err != nil {
			logger.Error("%v", err)
			c.AbortWithStatus(500)
			return
		}

		if exists {
			c.Next()
			return
		}

		c.JSON(401, gin.H{"error": "User not authorized"})
		c.Abort()
	}
}
