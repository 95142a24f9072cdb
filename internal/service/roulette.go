package service

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/Moonlightintherain/q/internal/ledger"
	"github.com/Moonlightintherain/q/internal/middleware"
	"github.com/Moonlightintherain/q/internal/models"
	"github.com/Moonlightintherain/q/internal/roulette"
	"github.com/Moonlightintherain/q/pkg/logger"
)

type rouletteBetInput struct {
	Amount  float64  `json:"amount" validate:"min=0"`
	GiftIDs []string `json:"gift_ids" validate:"dive,required"`
}

func (s *Service) PlaceRouletteBet(c *gin.Context) {
	var input rouletteBetInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(400, gin.H{"error": "Invalid input"})
		return
	}
	if err := validate.Struct(input); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if input.Amount <= 0 && len(input.GiftIDs) == 0 {
		c.JSON(400, gin.H{"error": "Bet must include TON or gifts"})
		return
	}

	userID, err := middleware.GetUserIDFromGinContext(c)
	if err != nil {
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	staked, err := s.stakedGifts(userID, input.GiftIDs)
	if err != nil {
		if errors.Is(err, errGiftNotOwned) {
			c.JSON(400, gin.H{"error": "Gift does not belong to you"})
			return
		}
		logger.Error("Failed to value gifts for user %d: %v", userID, err)
		c.Status(500)
		return
	}

	err = s.Roulette.PlaceBet(userID, input.Amount, staked, middleware.GetProfileFromGinContext(c))
	if err != nil {
		switch {
		case errors.Is(err, roulette.ErrBetsClosed):
			c.JSON(400, gin.H{"error": "Bets are not accepted right now"})
		case errors.Is(err, roulette.ErrBetTooSmall):
			c.JSON(400, gin.H{"error": "Minimum bet is 0.01 TON"})
		case errors.Is(err, ledger.ErrInsufficientFunds):
			c.JSON(402, gin.H{"error": "Insufficient balance"})
		case errors.Is(err, ledger.ErrGiftNotOwned):
			c.JSON(400, gin.H{"error": "Gift does not belong to you"})
		case errors.Is(err, ledger.ErrNotFound):
			c.JSON(404, gin.H{"error": "User not found"})
		default:
			logger.Error("Failed to place roulette bet: %v", err)
			c.Status(500)
		}
		return
	}

	c.JSON(200, gin.H{"success": true})
}

var errGiftNotOwned = errors.New("gift not owned")

// stakedGifts resolves the caller's gift IDs into staked gifts priced at
// the collection floor. Every ID must belong to the caller.
func (s *Service) stakedGifts(userID int64, giftIDs []string) ([]roulette.StakedGift, error) {
	if len(giftIDs) == 0 {
		return nil, nil
	}

	owned, err := s.Ledger.GiftsOwnedBy(userID, giftIDs)
	if err != nil {
		return nil, err
	}
	if len(owned) != len(giftIDs) {
		return nil, errGiftNotOwned
	}

	staked := make([]roulette.StakedGift, 0, len(owned))
	for _, g := range owned {
		floor, err := s.Gifts.FloorPrice(g.CollectionID)
		if err != nil {
			return nil, err
		}
		staked = append(staked, roulette.StakedGift{
			ID:           g.ID,
			CollectionID: g.CollectionID,
			Value:        floor,
		})
	}
	return staked, nil
}

// GetRouletteHistory returns the most recent settled rounds.
func (s *Service) GetRouletteHistory(c *gin.Context) {
	var logs []models.RouletteRoundLog
	err := s.Ledger.DB().Order("id desc").Limit(50).Find(&logs).Error
	if err != nil {
		logger.Error("Failed to fetch roulette history: %v", err)
		c.Status(500)
		return
	}

	c.JSON(200, gin.H{"results": logs})
}

// GetUserGifts lists the gifts owned by the caller.
func (s *Service) GetUserGifts(c *gin.Context) {
	userID, err := middleware.GetUserIDFromGinContext(c)
	if err != nil {
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	giftList, err := s.Ledger.UserGifts(userID)
	if err != nil {
		logger.Error("Failed to fetch gifts for user %d: %v", userID, err)
		c.Status(500)
		return
	}

	c.JSON(200, gin.H{"gifts": giftList})
}
