package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Moonlightintherain/q/internal/ledger"
	"github.com/Moonlightintherain/q/internal/middleware"
	"github.com/Moonlightintherain/q/internal/models"
	"github.com/Moonlightintherain/q/pkg/logger"
)

// withdrawalFee is charged on top of the requested amount and covers the
// network fee of the outgoing transfer.
const withdrawalFee = 0.05

const minWithdrawal = 0.1

type withdrawalInput struct {
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	WalletAddress string  `json:"wallet_address" validate:"required,min=48,max=66"`
}

// Withdraw debits the user up front and then submits the on-chain transfer.
// If the transfer fails the transaction is marked failed and support is
// notified; the debit is NOT reversed automatically, because the wallet
// service may have sent the money despite reporting an error. Operators
// reconcile failed withdrawals by hand.
func (s *Service) Withdraw(c *gin.Context) {
	var input withdrawalInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(400, gin.H{"error": "Invalid input"})
		return
	}
	if err := validate.Struct(input); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if input.Amount < minWithdrawal {
		c.JSON(400, gin.H{"error": fmt.Sprintf("Minimum withdrawal is %.1f TON", minWithdrawal)})
		return
	}

	userID, err := middleware.GetUserIDFromGinContext(c)
	if err != nil {
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	total := input.Amount + withdrawalFee
	if err := s.Ledger.AdjustBalance(userID, -total); err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			c.JSON(402, gin.H{"error": "Insufficient balance"})
		case errors.Is(err, ledger.ErrNotFound):
			c.JSON(404, gin.H{"error": "User not found"})
		default:
			logger.Error("Failed to debit withdrawal for user %d: %v", userID, err)
			c.Status(500)
		}
		return
	}

	tx := &models.Transaction{
		UserID:        userID,
		Type:          models.TransactionWithdrawal,
		Amount:        input.Amount,
		Fee:           withdrawalFee,
		WalletAddress: input.WalletAddress,
		Status:        models.StatusPending,
	}
	if err := s.Ledger.RecordTransaction(tx); err != nil {
		logger.Error("Failed to record withdrawal for user %d: %v", userID, err)
		c.Status(500)
		return
	}

	go s.Notifier.WithdrawalStarted(userID, input.Amount, input.WalletAddress)

	result, err := s.TON.Send(input.WalletAddress, input.Amount, fmt.Sprintf("withdrawal-%d", tx.ID))
	if err != nil || !result.Success {
		errText := ""
		if err != nil {
			errText = err.Error()
		} else {
			errText = result.Error
		}
		logger.Error("Withdrawal %d failed for user %d: %s", tx.ID, userID, errText)
		if err := s.Ledger.UpdateTransactionStatus(tx.ID, models.StatusFailed); err != nil {
			logger.Error("Failed to mark withdrawal %d failed: %v", tx.ID, err)
		}
		go s.Notifier.OperationFailed(userID, "withdrawal", errText,
			tx.ID, input.Amount, withdrawalFee, input.WalletAddress)
		c.JSON(502, gin.H{"error": "Transfer failed, support has been notified"})
		return
	}

	now := time.Now()
	err = s.Ledger.DB().Model(&models.Transaction{}).Where("id = ?", tx.ID).
		Updates(map[string]interface{}{
			"status":        models.StatusCompleted,
			"external_hash": result.Hash,
			"completed_at":  &now,
		}).Error
	if err != nil {
		logger.Error("Failed to complete withdrawal %d: %v", tx.ID, err)
	}

	logger.Info("Withdrawal %d sent: user %d, %.2f TON to %s (%s)",
		tx.ID, userID, input.Amount, input.WalletAddress, result.Hash)
	go s.Notifier.WithdrawalSent(userID, input.Amount, result.Hash, input.WalletAddress)

	c.JSON(200, gin.H{"success": true, "transaction_hash": result.Hash})
}
