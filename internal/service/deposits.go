package service

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/Moonlightintherain/q/internal/ledger"
	"github.com/Moonlightintherain/q/pkg/logger"
)

type depositCallbackInput struct {
	UserID          int64   `json:"user_id" validate:"required"`
	Amount          float64 `json:"amount" validate:"required,gt=0"`
	TransactionHash string  `json:"transaction_hash" validate:"required"`
}

// DepositCallback is called by the wallet watcher when an incoming transfer
// lands. The on-chain hash is the idempotency key, so replays are safe.
func (s *Service) DepositCallback(c *gin.Context) {
	var input depositCallbackInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(400, gin.H{"error": "Invalid input"})
		return
	}
	if err := validate.Struct(input); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	err := s.Ledger.Deposit(input.UserID, input.Amount, input.TransactionHash)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrDuplicateTransaction):
			// Already credited for this hash, nothing more to do.
			c.JSON(200, gin.H{"success": true, "duplicate": true})
		case errors.Is(err, ledger.ErrNotFound):
			c.JSON(404, gin.H{"error": "User not found"})
		default:
			logger.Error("Failed to credit deposit %s for user %d: %v",
				input.TransactionHash, input.UserID, err)
			c.Status(500)
		}
		return
	}

	logger.Info("Deposit %s credited: user %d, %.2f TON",
		input.TransactionHash, input.UserID, input.Amount)
	go s.Notifier.DepositReceived(input.UserID, input.Amount, input.TransactionHash)

	c.JSON(200, gin.H{"success": true})
}
