package middleware

import (
	"errors"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"github.com/Moonlightintherain/q/internal/models"
	"github.com/Moonlightintherain/q/pkg/logger"
)

const (
	ContextUserIDKey  = "user_id"
	ContextProfileKey = "user_profile"

	// Init data older than this is rejected even with a valid signature.
	InitDataExpiration = time.Hour
)

var telegramBotToken string

func init() {
	var ok bool
	telegramBotToken, ok = os.LookupEnv("BOT_TOKEN")
	if !ok {
		logger.Fatal("unable to get telegram bot token from environment")
	}
}

// ValidateTelegramInitDataMiddleware checks the init data signature and
// freshness before trusting any embedded profile claim.
func ValidateTelegramInitDataMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var initData string

		if c.IsWebsocket() {
			// For WebSocket connections, get init data from query parameter
			initData = c.Query("init_data")
		} else {
			initData = c.GetHeader("X-Telegram-Init-Data")
		}

		if initData == "" {
			c.JSON(400, gin.H{"error": "Missing Telegram init data"})
			c.Abort()
			return
		}

		err := initdata.Validate(initData, telegramBotToken, InitDataExpiration)
		if err != nil {
			c.JSON(403, gin.H{"error": "invalid signature"})
			c.Abort()
			return
		}

		parsedData, err := initdata.Parse(initData)
		if err != nil {
			c.JSON(400, gin.H{"error": "Failed to parse Telegram init data"})
			c.Abort()
			return
		}

		if parsedData.User.ID == 0 {
			c.JSON(400, gin.H{"error": "User ID is zero"})
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, parsedData.User.ID)
		c.Set(ContextProfileKey, models.Profile{
			Username:  parsedData.User.Username,
			FirstName: parsedData.User.FirstName,
			LastName:  parsedData.User.LastName,
			PhotoURL:  parsedData.User.PhotoURL,
		})
		c.Next()
	}
}

func GetUserIDFromGinContext(c *gin.Context) (int64, error) {
	userIDAny, ok := c.Get(ContextUserIDKey)
	if !ok {
		return 0, logger.WrapError(errors.New("user_id not in GIN context"), "")
	}

	userIDInt, ok := userIDAny.(int64)
	if !ok {
		return 0, logger.WrapError(errors.New("unable to cast user_id value to int"), "")
	}

	return userIDInt, nil
}

func GetProfileFromGinContext(c *gin.Context) models.Profile {
	profileAny, ok := c.Get(ContextProfileKey)
	if !ok {
		return models.Profile{}
	}
	profile, _ := profileAny.(models.Profile)
	return profile
}
