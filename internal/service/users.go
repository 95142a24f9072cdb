package service

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Moonlightintherain/q/internal/ledger"
	"github.com/Moonlightintherain/q/internal/middleware"
	"github.com/Moonlightintherain/q/pkg/logger"
)

// Auth validates the caller's init data (done by middleware) and creates the
// account lazily on first contact.
func (s *Service) Auth(c *gin.Context) {
	userID, err := middleware.GetUserIDFromGinContext(c)
	if err != nil {
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	user, err := s.Ledger.GetOrCreateUser(userID, middleware.GetProfileFromGinContext(c))
	if err != nil {
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	userGifts, err := s.Ledger.UserGifts(userID)
	if err != nil {
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	c.JSON(200, gin.H{"user": user, "gifts": userGifts})
}

func (s *Service) GetUser(c *gin.Context) {
	userID, err := middleware.GetUserIDFromGinContext(c)
	if err != nil {
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	user, err := s.Ledger.GetUser(userID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(404, gin.H{"error": "User not found"})
			return
		}
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	userGifts, err := s.Ledger.UserGifts(userID)
	if err != nil {
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	c.JSON(200, gin.H{"user": user, "gifts": userGifts})
}

// GetTransactions returns the caller's paginated transaction history.
func (s *Service) GetTransactions(c *gin.Context) {
	userID, err := middleware.GetUserIDFromGinContext(c)
	if err != nil {
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := s.Ledger.TransactionHistory(userID, limit, offset)
	if err != nil {
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	c.JSON(200, gin.H{"results": entries})
}

// GetGiftCollections exposes floor prices and display names.
func (s *Service) GetGiftCollections(c *gin.Context) {
	cols, err := s.Gifts.Collections()
	if err != nil {
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	c.JSON(200, gin.H{"results": cols})
}
