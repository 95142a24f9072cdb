package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/Moonlightintherain/q/pkg/logger"
)

// Reserved ledger accounts. The house account holds every stake placed in a
// round until settlement, the fee account accumulates commission.
const (
	HouseAccountID int64 = 0
	FeeAccountID   int64 = 1
)

type User struct {
	ID        int64   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Balance   float64 `gorm:"not null;default:0" json:"balance"`
	Username  string  `json:"username"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	PhotoURL  string  `json:"photo_url"`
	CreatedAt time.Time `json:"-"`
}

type Profile struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	PhotoURL  string `json:"photo_url"`
}

func CheckIfUserExistsByID(db *gorm.DB, userID int64) (bool, error) {
	var exists bool
	err := db.Model(&User{}).
		Select("count(*) > 0").
		Where("id = ?", userID).
		Scan(&exists).Error
	if err != nil {
		return true, logger.WrapError(err, "")
	}

	return exists, nil
}

// EnsureReservedAccounts creates the house and fee accounts if missing.
// They are regular user rows so every money movement stays inside the ledger.
func EnsureReservedAccounts(db *gorm.DB) error {
	for _, id := range []int64{HouseAccountID, FeeAccountID} {
		var count int64
		if err := db.Model(&User{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return logger.WrapError(err, "")
		}
		if count == 0 {
			if err := db.Create(&User{ID: id}).Error; err != nil {
				return logger.WrapError(err, "")
			}
		}
	}
	return nil
}
