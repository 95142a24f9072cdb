package service

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/Moonlightintherain/q/internal/crash"
	"github.com/Moonlightintherain/q/internal/ledger"
	"github.com/Moonlightintherain/q/internal/middleware"
	"github.com/Moonlightintherain/q/internal/models"
	"github.com/Moonlightintherain/q/pkg/logger"
)

type crashBetInput struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

type crashCashoutInput struct {
	Multiplier float64 `json:"multiplier" validate:"required,min=1"`
}

func (s *Service) PlaceCrashBet(c *gin.Context) {
	var input crashBetInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(400, gin.H{"error": "Invalid input"})
		return
	}
	if err := validate.Struct(input); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	userID, err := middleware.GetUserIDFromGinContext(c)
	if err != nil {
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	err = s.Crash.PlaceBet(userID, input.Amount, middleware.GetProfileFromGinContext(c))
	if err != nil {
		switch {
		case errors.Is(err, crash.ErrBettingClosed):
			c.JSON(400, gin.H{"error": "Bets are not accepted right now"})
		case errors.Is(err, crash.ErrBetTooSmall):
			c.JSON(400, gin.H{"error": "Minimum bet is 0.01 TON"})
		case errors.Is(err, crash.ErrExistingBet):
			c.JSON(400, gin.H{"error": "You already have a bet in this round"})
		case errors.Is(err, ledger.ErrInsufficientFunds):
			c.JSON(402, gin.H{"error": "Insufficient balance"})
		case errors.Is(err, ledger.ErrNotFound):
			c.JSON(404, gin.H{"error": "User not found"})
		default:
			logger.Error("Failed to place crash bet: %v", err)
			c.Status(500)
		}
		return
	}

	c.JSON(200, gin.H{"success": true})
}

func (s *Service) CrashCashout(c *gin.Context) {
	var input crashCashoutInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(400, gin.H{"error": "Invalid input"})
		return
	}
	if err := validate.Struct(input); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	userID, err := middleware.GetUserIDFromGinContext(c)
	if err != nil {
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	win, err := s.Crash.CashOut(userID, input.Multiplier)
	if err != nil {
		switch {
		case errors.Is(err, crash.ErrRoundNotRunning):
			c.JSON(400, gin.H{"error": "Round is not active"})
		case errors.Is(err, crash.ErrNoActiveBet):
			c.JSON(400, gin.H{"error": "No active bet"})
		case errors.Is(err, crash.ErrBadMultiplier):
			c.JSON(400, gin.H{"error": "Invalid multiplier"})
		case errors.Is(err, crash.ErrCashOutInFlight):
			c.JSON(409, gin.H{"error": "Cash-out already in progress"})
		default:
			logger.Error("Failed to cash out for user %d: %v", userID, err)
			c.Status(500)
		}
		return
	}

	c.JSON(200, gin.H{"success": true, "win": win})
}

// GetCrashHistory returns the most recent finished rounds from the round
// log.
func (s *Service) GetCrashHistory(c *gin.Context) {
	var logs []models.CrashRoundLog
	err := s.Ledger.DB().Order("id desc").Limit(50).Find(&logs).Error
	if err != nil {
		logger.Error("Failed to fetch crash history: %v", err)
		c.Status(500)
		return
	}

	c.JSON(200, gin.H{"results": logs})
}
