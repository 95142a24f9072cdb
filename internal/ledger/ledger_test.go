package ledger

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Moonlightintherain/q/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.User{},
		&models.Transaction{},
		&models.GiftCollection{},
		&models.Gift{},
		&models.CrashRoundLog{},
		&models.RouletteRoundLog{},
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := models.EnsureReservedAccounts(db); err != nil {
		t.Fatalf("failed to seed reserved accounts: %v", err)
	}
	return db
}

func createUser(t *testing.T, db *gorm.DB, id int64, balance float64) {
	t.Helper()
	if err := db.Create(&models.User{ID: id, Balance: balance}).Error; err != nil {
		t.Fatalf("failed to create user %d: %v", id, err)
	}
}

func balanceOf(t *testing.T, db *gorm.DB, id int64) float64 {
	t.Helper()
	var user models.User
	if err := db.First(&user, id).Error; err != nil {
		t.Fatalf("failed to load user %d: %v", id, err)
	}
	return user.Balance
}

func TestTransferBalanceMovesMoney(t *testing.T) {
	db := openTestDB(t)
	l := New(db)
	createUser(t, db, 100, 5.0)
	createUser(t, db, 200, 1.0)

	if err := l.TransferBalance(100, 200, 2.5); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	if got := balanceOf(t, db, 100); got != 2.5 {
		t.Errorf("sender balance = %v, want 2.5", got)
	}
	if got := balanceOf(t, db, 200); got != 3.5 {
		t.Errorf("receiver balance = %v, want 3.5", got)
	}
}

func TestTransferBalanceInsufficientFunds(t *testing.T) {
	db := openTestDB(t)
	l := New(db)
	createUser(t, db, 100, 1.0)
	createUser(t, db, 200, 0)

	err := l.TransferBalance(100, 200, 1.5)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	// neither side moved
	if got := balanceOf(t, db, 100); got != 1.0 {
		t.Errorf("sender balance = %v, want 1.0 after failed transfer", got)
	}
	if got := balanceOf(t, db, 200); got != 0 {
		t.Errorf("receiver balance = %v, want 0 after failed transfer", got)
	}
}

func TestTransferBalanceUnknownAccount(t *testing.T) {
	db := openTestDB(t)
	l := New(db)
	createUser(t, db, 100, 1.0)

	err := l.TransferBalance(100, 999, 0.5)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if got := balanceOf(t, db, 100); got != 1.0 {
		t.Errorf("sender balance = %v, want 1.0 after rollback", got)
	}
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	db := openTestDB(t)
	l := New(db)
	createUser(t, db, 100, 10.0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.AdjustBalance(100, -1.0); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("succeeded = %d, want exactly 10 debits of 1.0 from 10.0", succeeded)
	}
	if got := balanceOf(t, db, 100); got != 0 {
		t.Errorf("balance = %v, want 0", got)
	}
}

func TestDepositIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	l := New(db)
	createUser(t, db, 100, 0)

	if err := l.Deposit(100, 5.0, "hash-abc"); err != nil {
		t.Fatalf("first deposit failed: %v", err)
	}
	err := l.Deposit(100, 5.0, "hash-abc")
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("replay err = %v, want ErrDuplicateTransaction", err)
	}

	if got := balanceOf(t, db, 100); got != 5.0 {
		t.Errorf("balance = %v, want 5.0 after replayed deposit", got)
	}

	var count int64
	db.Model(&models.Transaction{}).Where("user_id = ?", 100).Count(&count)
	if count != 1 {
		t.Errorf("transaction count = %d, want 1", count)
	}
}

func TestDepositDistinctHashesBothCredit(t *testing.T) {
	db := openTestDB(t)
	l := New(db)
	createUser(t, db, 100, 0)

	if err := l.Deposit(100, 2.0, "hash-1"); err != nil {
		t.Fatalf("deposit 1 failed: %v", err)
	}
	if err := l.Deposit(100, 3.0, "hash-2"); err != nil {
		t.Fatalf("deposit 2 failed: %v", err)
	}
	if got := balanceOf(t, db, 100); got != 5.0 {
		t.Errorf("balance = %v, want 5.0", got)
	}
}

func TestTransferGiftsRequiresAllPresent(t *testing.T) {
	db := openTestDB(t)
	l := New(db)
	createUser(t, db, 100, 0)
	db.Create(&models.GiftCollection{ID: "cap", Name: "Cap", Floor: 1.5})
	db.Create(&models.Gift{ID: "g1", CollectionID: "cap", OwnerID: 100})

	err := l.TransferGifts([]string{"g1", "missing"}, models.HouseAccountID)
	if !errors.Is(err, ErrGiftNotOwned) {
		t.Fatalf("err = %v, want ErrGiftNotOwned", err)
	}

	// g1 must not have moved
	var g models.Gift
	if err := db.First(&g, "id = ?", "g1").Error; err != nil {
		t.Fatalf("failed to load gift: %v", err)
	}
	if g.OwnerID != 100 {
		t.Errorf("gift owner = %d, want 100 after failed transfer", g.OwnerID)
	}
}

func TestGiftsOwnedByRejectsForeignGift(t *testing.T) {
	db := openTestDB(t)
	l := New(db)
	createUser(t, db, 100, 0)
	createUser(t, db, 200, 0)
	db.Create(&models.GiftCollection{ID: "cap", Name: "Cap", Floor: 1.5})
	db.Create(&models.Gift{ID: "g1", CollectionID: "cap", OwnerID: 200})

	_, err := l.GiftsOwnedBy(100, []string{"g1"})
	if !errors.Is(err, ErrGiftNotOwned) {
		t.Fatalf("err = %v, want ErrGiftNotOwned", err)
	}
}

func TestTransactionHistoryNewestFirst(t *testing.T) {
	db := openTestDB(t)
	l := New(db)
	createUser(t, db, 100, 0)

	for i := 0; i < 5; i++ {
		hash := fmt.Sprintf("h-%d", i)
		if err := l.Deposit(100, 1.0, hash); err != nil {
			t.Fatalf("deposit %d failed: %v", i, err)
		}
	}

	entries, err := l.TransactionHistory(100, 3, 0)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	if entries[0].ExternalHash != "h-4" {
		t.Errorf("first entry hash = %s, want h-4 (newest first)", entries[0].ExternalHash)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].ID > entries[i-1].ID {
			t.Errorf("entries not ordered newest first at %d", i)
		}
	}
}

func TestGetOrCreateUserRefreshesProfile(t *testing.T) {
	db := openTestDB(t)
	l := New(db)

	u, err := l.GetOrCreateUser(300, models.Profile{Username: "old"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if u.Username != "old" {
		t.Errorf("username = %s, want old", u.Username)
	}

	u, err = l.GetOrCreateUser(300, models.Profile{Username: "new"})
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if u.Username != "new" {
		t.Errorf("username = %s, want new after refresh", u.Username)
	}
}
