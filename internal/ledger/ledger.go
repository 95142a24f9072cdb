package ledger

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Moonlightintherain/q/internal/models"
	"github.com/Moonlightintherain/q/pkg/logger"
)

var (
	ErrNotFound             = errors.New("account not found")
	ErrInsufficientFunds    = errors.New("insufficient balance")
	ErrDuplicateTransaction = errors.New("transaction already processed")
	ErrGiftNotOwned         = errors.New("gift does not belong to this user")
)

// Ledger is the transactional balance and gift store. Every balance-changing
// call is persisted before it returns; per-account mutations serialize on the
// account row so concurrent bets cannot lose updates.
type Ledger struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) DB() *gorm.DB {
	return l.db
}

func (l *Ledger) GetUser(id int64) (*models.User, error) {
	var user models.User
	if err := l.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, logger.WrapError(err, "")
	}
	return &user, nil
}

// GetOrCreateUser creates the account lazily on first contact and refreshes
// the stored profile on every call after that.
func (l *Ledger) GetOrCreateUser(id int64, profile models.Profile) (*models.User, error) {
	var user models.User
	err := l.db.Transaction(func(tx *gorm.DB) error {
		err := tx.First(&user, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = models.User{
				ID:        id,
				Username:  profile.Username,
				FirstName: profile.FirstName,
				LastName:  profile.LastName,
				PhotoURL:  profile.PhotoURL,
			}
			return tx.Create(&user).Error
		}
		if err != nil {
			return err
		}

		user.Username = profile.Username
		user.FirstName = profile.FirstName
		user.LastName = profile.LastName
		user.PhotoURL = profile.PhotoURL
		return tx.Save(&user).Error
	})
	if err != nil {
		return nil, logger.WrapError(err, "")
	}
	return &user, nil
}

// adjustBalance applies delta to one account inside tx. The balance guard is
// part of the UPDATE itself, so two concurrent debits cannot both pass a
// stale read.
func adjustBalance(tx *gorm.DB, id int64, delta float64) error {
	res := tx.Model(&models.User{}).
		Where("id = ? AND balance + ? >= 0", id, delta).
		Update("balance", gorm.Expr("balance + ?", delta))
	if res.Error != nil {
		return logger.WrapError(res.Error, "")
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return logger.WrapError(err, "")
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrInsufficientFunds
	}
	return nil
}

func (l *Ledger) AdjustBalance(id int64, delta float64) error {
	return adjustBalance(l.db, id, delta)
}

// TransferBalance moves amount between two accounts as a debit followed by a
// credit inside one database transaction. Either both apply or neither does.
func (l *Ledger) TransferBalance(fromID, toID int64, amount float64) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		if err := adjustBalance(tx, fromID, -amount); err != nil {
			return err
		}
		return adjustBalance(tx, toID, amount)
	})
}

// TransferGifts reassigns ownership of the given gifts. Fails if any gift is
// missing, leaving ownership untouched.
func (l *Ledger) TransferGifts(giftIDs []string, toOwner int64) error {
	if len(giftIDs) == 0 {
		return nil
	}
	return l.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Gift{}).
			Where("id IN ?", giftIDs).
			Update("owner_id", toOwner)
		if res.Error != nil {
			return logger.WrapError(res.Error, "")
		}
		if res.RowsAffected != int64(len(giftIDs)) {
			return ErrGiftNotOwned
		}
		return nil
	})
}

// GiftsOwnedBy verifies every id belongs to owner and returns the rows in the
// order requested.
func (l *Ledger) GiftsOwnedBy(ownerID int64, giftIDs []string) ([]models.Gift, error) {
	var gifts []models.Gift
	if len(giftIDs) == 0 {
		return gifts, nil
	}
	err := l.db.Where("owner_id = ? AND id IN ?", ownerID, giftIDs).Find(&gifts).Error
	if err != nil {
		return nil, logger.WrapError(err, "")
	}
	if len(gifts) != len(giftIDs) {
		return nil, ErrGiftNotOwned
	}
	return gifts, nil
}

func (l *Ledger) UserGifts(ownerID int64) ([]models.Gift, error) {
	var gifts []models.Gift
	if err := l.db.Where("owner_id = ?", ownerID).Find(&gifts).Error; err != nil {
		return nil, logger.WrapError(err, "")
	}
	return gifts, nil
}

// RecordTransaction appends an entry to the money-movement log.
func (l *Ledger) RecordTransaction(t *models.Transaction) error {
	if err := l.db.Create(t).Error; err != nil {
		if isDuplicateErr(err) {
			return ErrDuplicateTransaction
		}
		return logger.WrapError(err, "")
	}
	return nil
}

func (l *Ledger) UpdateTransactionStatus(id int64, status string) error {
	now := time.Now()
	updates := map[string]interface{}{"status": status}
	if status == models.StatusCompleted || status == models.StatusFailed {
		updates["completed_at"] = &now
	}
	if err := l.db.Model(&models.Transaction{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return logger.WrapError(err, "")
	}
	return nil
}

// Deposit credits the user exactly once per external hash. Replaying the same
// hash returns ErrDuplicateTransaction without touching the balance.
func (l *Ledger) Deposit(userID int64, amount float64, externalHash string) error {
	err := l.db.Transaction(func(tx *gorm.DB) error {
		t := models.Transaction{
			UserID:       userID,
			Type:         models.TransactionDeposit,
			Amount:       amount,
			ExternalHash: externalHash,
			Status:       models.StatusCompleted,
		}
		now := time.Now()
		t.CompletedAt = &now
		if err := tx.Create(&t).Error; err != nil {
			if isDuplicateErr(err) {
				return ErrDuplicateTransaction
			}
			return logger.WrapError(err, "")
		}
		return adjustBalance(tx, userID, amount)
	})
	return err
}

// TransactionHistory returns the user's log, newest first. Limit is clamped
// to 100.
func (l *Ledger) TransactionHistory(userID int64, limit, offset int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	var entries []models.Transaction
	err := l.db.Where("user_id = ?", userID).
		Order("id desc").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, logger.WrapError(err, "")
	}
	return entries, nil
}

func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
