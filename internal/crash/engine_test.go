package crash

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Moonlightintherain/q/internal/hub"
	"github.com/Moonlightintherain/q/internal/ledger"
	"github.com/Moonlightintherain/q/internal/models"
)

func newTestEngine(t *testing.T) (*Engine, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:crash_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&models.User{}, &models.Transaction{}, &models.CrashRoundLog{})
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := models.EnsureReservedAccounts(db); err != nil {
		t.Fatalf("failed to seed reserved accounts: %v", err)
	}
	// the house carries a float so payouts never bounce
	db.Model(&models.User{}).Where("id = ?", models.HouseAccountID).Update("balance", 1000.0)

	return NewEngine(DefaultConfig(), ledger.New(db), hub.New()), db
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

func TestBetThenCashOutPaysStakeTimesMultiplier(t *testing.T) {
	e, db := newTestEngine(t)
	createUser(t, db, 100, 1.00)

	e.phase = PhaseBetting
	if err := e.PlaceBet(100, 0.50, models.Profile{}); err != nil {
		t.Fatalf("place bet failed: %v", err)
	}
	if got := balanceOf(t, db, 100); got != 0.50 {
		t.Fatalf("balance after bet = %v, want 0.50", got)
	}

	e.phase = PhaseRunning
	e.multiplier = 1.5
	win, err := e.CashOut(100, 1.5)
	if err != nil {
		t.Fatalf("cash out failed: %v", err)
	}
	if win != 0.75 {
		t.Errorf("win = %v, want 0.75", win)
	}
	if got := balanceOf(t, db, 100); got != 1.25 {
		t.Errorf("balance after cash-out = %v, want 1.25", got)
	}
	if e.bets[100].Status != BetCashed {
		t.Errorf("bet status = %s, want cashed", e.bets[100].Status)
	}
}

func TestPlaceBetRejectedOutsideBettingWindow(t *testing.T) {
	e, db := newTestEngine(t)
	createUser(t, db, 100, 1.00)

	e.phase = PhaseRunning
	if err := e.PlaceBet(100, 0.50, models.Profile{}); !errors.Is(err, ErrBettingClosed) {
		t.Errorf("err = %v, want ErrBettingClosed", err)
	}
	if got := balanceOf(t, db, 100); got != 1.00 {
		t.Errorf("balance = %v, want untouched 1.00", got)
	}
}

func TestPlaceBetRejectsDuplicateAndUndersized(t *testing.T) {
	e, db := newTestEngine(t)
	createUser(t, db, 100, 1.00)
	e.phase = PhaseBetting

	if err := e.PlaceBet(100, 0.001, models.Profile{}); !errors.Is(err, ErrBetTooSmall) {
		t.Errorf("err = %v, want ErrBetTooSmall", err)
	}
	if err := e.PlaceBet(100, 0.10, models.Profile{}); err != nil {
		t.Fatalf("first bet failed: %v", err)
	}
	if err := e.PlaceBet(100, 0.10, models.Profile{}); !errors.Is(err, ErrExistingBet) {
		t.Errorf("err = %v, want ErrExistingBet", err)
	}
}

func TestPlaceBetInsufficientBalance(t *testing.T) {
	e, db := newTestEngine(t)
	createUser(t, db, 100, 0.05)
	e.phase = PhaseBetting

	err := e.PlaceBet(100, 0.50, models.Profile{})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Errorf("err = %v, want ErrInsufficientFunds", err)
	}
	if _, ok := e.bets[100]; ok {
		t.Error("bet registered despite failed debit")
	}
}

func TestCashOutRejectsMultiplierAboveCurrent(t *testing.T) {
	e, db := newTestEngine(t)
	createUser(t, db, 100, 1.00)
	e.phase = PhaseBetting
	if err := e.PlaceBet(100, 0.50, models.Profile{}); err != nil {
		t.Fatalf("place bet failed: %v", err)
	}

	e.phase = PhaseRunning
	e.multiplier = 1.5
	if _, err := e.CashOut(100, 2.0); !errors.Is(err, ErrBadMultiplier) {
		t.Errorf("err = %v, want ErrBadMultiplier", err)
	}
	if got := balanceOf(t, db, 100); got != 0.50 {
		t.Errorf("balance = %v, want 0.50 after rejected claim", got)
	}
}

func TestConcurrentCashOutPaysOnce(t *testing.T) {
	e, db := newTestEngine(t)
	createUser(t, db, 100, 1.00)
	e.phase = PhaseBetting
	if err := e.PlaceBet(100, 0.50, models.Profile{}); err != nil {
		t.Fatalf("place bet failed: %v", err)
	}
	e.phase = PhaseRunning
	e.multiplier = 2.0

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.CashOut(100, 2.0); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("successful cash-outs = %d, want exactly 1", wins)
	}
	// 1.00 - 0.50 + 0.50*2.0
	if got := balanceOf(t, db, 100); got != 1.50 {
		t.Errorf("balance = %v, want 1.50 (paid once)", got)
	}
}

func TestCrashMarksOngoingBetsLostAndTrimsHistory(t *testing.T) {
	e, db := newTestEngine(t)
	createUser(t, db, 100, 1.00)
	createUser(t, db, 200, 1.00)

	e.phase = PhaseBetting
	if err := e.PlaceBet(100, 0.50, models.Profile{}); err != nil {
		t.Fatalf("bet 100 failed: %v", err)
	}
	if err := e.PlaceBet(200, 0.25, models.Profile{}); err != nil {
		t.Fatalf("bet 200 failed: %v", err)
	}

	e.beginRunning()
	e.mu.Lock()
	e.multiplier = 1.5
	e.mu.Unlock()
	if _, err := e.CashOut(100, 1.5); err != nil {
		t.Fatalf("cash out failed: %v", err)
	}

	e.mu.Lock()
	e.history = []float64{9, 8, 7, 6, 5, 4, 3, 2, 1, 0.5}
	e.crashPoint = 2.13
	e.crash()
	e.mu.Unlock()

	if e.bets[200].Status != BetLost {
		t.Errorf("uncashed bet status = %s, want lost", e.bets[200].Status)
	}
	if e.bets[100].Status != BetCashed {
		t.Errorf("cashed bet status = %s, want cashed after crash", e.bets[100].Status)
	}
	if len(e.history) != e.cfg.HistorySize {
		t.Errorf("history length = %d, want %d", len(e.history), e.cfg.HistorySize)
	}
	if e.history[0] != 2.13 {
		t.Errorf("history[0] = %v, want the crash point 2.13", e.history[0])
	}

	var logRow models.CrashRoundLog
	if err := db.First(&logRow).Error; err != nil {
		t.Fatalf("round log not persisted: %v", err)
	}
	if logRow.StartedAt.IsZero() {
		t.Error("round log StartedAt not stamped")
	}
	if logRow.EndedAt.Before(logRow.StartedAt) {
		t.Errorf("log ended %v before it started %v", logRow.EndedAt, logRow.StartedAt)
	}
}

func TestDrawCrashPointStaysInBounds(t *testing.T) {
	e, _ := newTestEngine(t)
	for i := 0; i < 2000; i++ {
		p := e.drawCrashPoint()
		if p < 1.0 || p > e.cfg.MaxMultiplier {
			t.Fatalf("draw %d out of bounds: %v", i, p)
		}
	}
}

func TestStreakDrawsStayLow(t *testing.T) {
	e, _ := newTestEngine(t)
	e.streakLeft = 500
	for i := 0; i < 500; i++ {
		p := e.drawCrashPoint()
		if p < 1.0 || p > e.cfg.StreakCap {
			t.Fatalf("streak draw %d out of bounds: %v", i, p)
		}
	}
	if e.streakLeft != 0 {
		t.Errorf("streakLeft = %d, want 0 after draws", e.streakLeft)
	}
}

func TestPublishedEventsDetachedFromRoundState(t *testing.T) {
	e, db := newTestEngine(t)
	createUser(t, db, 100, 1.00)

	sub := e.Subscribe()
	defer e.Unsubscribe(sub)
	<-sub.C // snapshot

	e.phase = PhaseBetting
	if err := e.PlaceBet(100, 0.50, models.Profile{}); err != nil {
		t.Fatalf("place bet failed: %v", err)
	}

	ev := <-sub.C
	published, ok := ev["bets"].([]Bet)
	if !ok || len(published) != 1 {
		t.Fatalf("bet event carries %T, want a one-element []Bet", ev["bets"])
	}

	// subscribers marshal outside the engine lock; the payload they hold
	// must not change when the engine settles the bet
	e.phase = PhaseRunning
	e.multiplier = 2.0
	if _, err := e.CashOut(100, 2.0); err != nil {
		t.Fatalf("cash out failed: %v", err)
	}

	if published[0].Status != BetOngoing {
		t.Errorf("published bet status mutated to %s", published[0].Status)
	}
	if e.bets[100].Status != BetCashed {
		t.Errorf("engine bet status = %s, want cashed", e.bets[100].Status)
	}
	if _, err := json.Marshal(ev); err != nil {
		t.Fatalf("event not marshalable: %v", err)
	}
}

func TestBetListInJoinOrder(t *testing.T) {
	e, db := newTestEngine(t)
	for i := int64(1); i <= 5; i++ {
		createUser(t, db, 100+i, 10)
	}
	e.phase = PhaseBetting

	// larger stakes arrive later; order must still follow arrival
	for i := int64(1); i <= 5; i++ {
		if err := e.PlaceBet(100+i, float64(i), models.Profile{}); err != nil {
			t.Fatalf("bet %d failed: %v", i, err)
		}
	}

	list := e.betList()
	for i, b := range list {
		if b.UserID != 100+int64(i)+1 {
			t.Fatalf("position %d has user %d, want arrival order", i, b.UserID)
		}
	}
}
