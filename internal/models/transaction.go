package models

import "time"

const (
	TransactionDeposit    = "deposit"
	TransactionWithdrawal = "withdrawal"
	TransactionSettlement = "settlement"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Transaction is the append-only money-movement log. ExternalHash carries the
// on-chain transaction hash and is unique, which is what makes deposit
// processing idempotent.
type Transaction struct {
	ID            int64   `gorm:"primaryKey,autoIncrement" json:"id"`
	UserID        int64   `gorm:"index;not null" json:"user_id"`
	Type          string  `gorm:"not null" json:"type"`
	Amount        float64 `gorm:"not null" json:"amount"`
	Fee           float64 `gorm:"default:0" json:"fee"`
	ExternalHash  string  `gorm:"uniqueIndex;default:null" json:"transaction_hash,omitempty"`
	WalletAddress string  `json:"wallet_address,omitempty"`
	Status        string  `gorm:"not null;default:pending" json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}
