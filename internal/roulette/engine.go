package roulette

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Moonlightintherain/q/internal/clock"
	"github.com/Moonlightintherain/q/internal/hub"
	"github.com/Moonlightintherain/q/internal/ledger"
	"github.com/Moonlightintherain/q/internal/models"
	"github.com/Moonlightintherain/q/internal/rng"
	"github.com/Moonlightintherain/q/pkg/logger"
)

const (
	PhaseWaiting           = "waiting"
	PhaseWaitingForPlayers = "waitingForPlayers"
	PhaseBetting           = "betting"
	PhaseRunning           = "running"
	PhaseFinished          = "finished"
)

const (
	CountdownWaiting = "waiting"
	CountdownBetting = "betting"
)

var (
	ErrBetsClosed  = errors.New("bets are no longer accepted")
	ErrBetTooSmall = errors.New("stake is below the minimum")
)

type Config struct {
	WaitingWindow  time.Duration
	BettingWindow  time.Duration
	RevealDelay    time.Duration
	ResetDelay     time.Duration
	MinBet         float64
	CommissionRate float64
	FullRotations  int // visual spin-up turns added on top of the target angle
}

func DefaultConfig() Config {
	return Config{
		WaitingWindow:  60 * time.Second,
		BettingWindow:  20 * time.Second,
		RevealDelay:    8500 * time.Millisecond,
		ResetDelay:     3 * time.Second,
		MinBet:         0.01,
		CommissionRate: 0.05,
		FullRotations:  19,
	}
}

// StakedGift is one collectible put on the wheel, valued at its collection
// floor at bet time.
type StakedGift struct {
	ID           string  `json:"id"`
	CollectionID string  `json:"collection_id"`
	Value        float64 `json:"value"`
}

// Bet accumulates everything one user has staked in the round. Repeat bets
// merge into it; JoinSeq is stamped on the first bet and never again, because
// it fixes the user's sector on the wheel.
type Bet struct {
	UserID  int64          `json:"userId"`
	Amount  float64        `json:"amount"`
	Gifts   []StakedGift   `json:"gifts"`
	JoinSeq int64          `json:"-"`
	Profile models.Profile `json:"profile"`
}

func (b *Bet) GiftsValue() float64 {
	var v float64
	for _, g := range b.Gifts {
		v += g.Value
	}
	return v
}

func (b *Bet) TotalValue() float64 {
	return b.Amount + b.GiftsValue()
}

func (b *Bet) giftIDs() []string {
	ids := make([]string, 0, len(b.Gifts))
	for _, g := range b.Gifts {
		ids = append(ids, g.ID)
	}
	return ids
}

// snapshot returns a value copy safe to hand to subscribers. Gifts is copied
// too, so a later merge appending to the live slice cannot reach it.
func (b *Bet) snapshot() Bet {
	c := *b
	c.Gifts = append([]StakedGift(nil), b.Gifts...)
	return c
}

// Winner summarizes the settled round for broadcast.
type Winner struct {
	UserID    int64   `json:"userId"`
	Amount    float64 `json:"amount"`
	WinAmount float64 `json:"winAmount"`
	GiftCount int     `json:"giftCount"`
	Percent   float64 `json:"percent"`
}

// Engine drives the wheel round state machine. Same single-owner discipline
// as the crash engine: one mutex, timers re-enter through locked methods.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	ledger *ledger.Ledger
	hub    *hub.Hub

	phase         string
	countdown     int
	countdownType string
	bets          map[int64]*Bet
	joinSeq       int64

	// committed the instant betting closes, never recomputed at reveal
	winner  *Bet
	degrees float64
	result  *Winner

	waitClock   *clock.Countdown
	betClock    *clock.Countdown
	revealClock *clock.Countdown
	resetClock  *clock.Countdown
}

func NewEngine(cfg Config, l *ledger.Ledger, h *hub.Hub) *Engine {
	return &Engine{
		cfg:    cfg,
		ledger: l,
		hub:    h,
		phase:  PhaseWaiting,
		bets:   make(map[int64]*Bet),
	}
}

// PlaceBet escrows the stake (currency into the house account, gifts to the
// house owner) and merges it into the user's bet. The first bet arms the
// waiting window; the second distinct participant swaps it for the fixed
// betting window.
func (e *Engine) PlaceBet(userID int64, amount float64, stakedGifts []StakedGift, profile models.Profile) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == PhaseRunning || e.phase == PhaseFinished {
		return ErrBetsClosed
	}

	var giftsValue float64
	for _, g := range stakedGifts {
		giftsValue += g.Value
	}
	if amount+giftsValue < e.cfg.MinBet {
		return ErrBetTooSmall
	}

	if amount > 0 {
		if err := e.ledger.TransferBalance(userID, models.HouseAccountID, amount); err != nil {
			return err
		}
	}
	if len(stakedGifts) > 0 {
		ids := make([]string, 0, len(stakedGifts))
		for _, g := range stakedGifts {
			ids = append(ids, g.ID)
		}
		if err := e.ledger.TransferGifts(ids, models.HouseAccountID); err != nil {
			// compensate the currency debit so the failed bet leaves no trace
			if amount > 0 {
				if rerr := e.ledger.TransferBalance(models.HouseAccountID, userID, amount); rerr != nil {
					logger.Error("Failed to compensate stake for user %d: %v", userID, rerr)
				}
			}
			return err
		}
	}

	bet, exists := e.bets[userID]
	if !exists {
		e.joinSeq++
		bet = &Bet{UserID: userID, JoinSeq: e.joinSeq, Profile: profile}
		e.bets[userID] = bet
	}
	bet.Amount += amount
	bet.Gifts = append(bet.Gifts, stakedGifts...)

	switch {
	case e.phase == PhaseWaiting && len(e.bets) == 1:
		e.startWaitingForPlayers()
	case e.phase == PhaseWaitingForPlayers && len(e.bets) >= 2:
		e.startBetting()
	}

	e.hub.Publish(hub.Event{
		"type":     "bet",
		"bet":      bet.snapshot(),
		"bets":     e.betList(),
		"totalBet": e.totalValue(),
	})
	return nil
}

// startWaitingForPlayers arms the lone-bettor window. Caller holds the lock.
func (e *Engine) startWaitingForPlayers() {
	e.phase = PhaseWaitingForPlayers
	e.countdown = int(e.cfg.WaitingWindow / time.Second)
	e.countdownType = CountdownWaiting

	e.hub.Publish(hub.Event{
		"type":          "status",
		"status":        PhaseWaitingForPlayers,
		"countdown":     e.countdown,
		"countdownType": CountdownWaiting,
		"bets":          e.betList(),
	})

	e.waitClock = clock.Start(e.cfg.WaitingWindow, time.Second,
		func(remaining int) {
			e.mu.Lock()
			e.countdown = remaining
			e.hub.Publish(hub.Event{"type": "countdown", "countdown": remaining, "countdownType": CountdownWaiting})
			e.mu.Unlock()
		},
		e.waitingExpired)
}

// startBetting cancels the waiting window and arms the fixed betting window.
// Caller holds the lock.
func (e *Engine) startBetting() {
	if e.waitClock != nil {
		e.waitClock.Stop()
		e.waitClock = nil
	}

	e.phase = PhaseBetting
	e.countdown = int(e.cfg.BettingWindow / time.Second)
	e.countdownType = CountdownBetting

	e.hub.Publish(hub.Event{
		"type":          "status",
		"status":        PhaseBetting,
		"countdown":     e.countdown,
		"countdownType": CountdownBetting,
		"bets":          e.betList(),
		"totalBet":      e.totalValue(),
	})

	e.betClock = clock.Start(e.cfg.BettingWindow, time.Second,
		func(remaining int) {
			e.mu.Lock()
			e.countdown = remaining
			e.hub.Publish(hub.Event{"type": "countdown", "countdown": remaining, "countdownType": CountdownBetting})
			e.mu.Unlock()
		},
		e.endBetting)
}

// waitingExpired refunds the lone participant in full and resets the round.
func (e *Engine) waitingExpired() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseWaitingForPlayers || len(e.bets) != 1 {
		return
	}

	for _, bet := range e.bets {
		if bet.Amount > 0 {
			if err := e.ledger.TransferBalance(models.HouseAccountID, bet.UserID, bet.Amount); err != nil {
				logger.Error("Failed to refund lone bettor %d: %v", bet.UserID, err)
			}
		}
		if len(bet.Gifts) > 0 {
			if err := e.ledger.TransferGifts(bet.giftIDs(), bet.UserID); err != nil {
				logger.Error("Failed to return gifts to lone bettor %d: %v", bet.UserID, err)
			}
		}
	}

	e.hub.Publish(hub.Event{
		"type":   "status",
		"status": PhaseWaiting,
		"notice": "round cancelled, stake returned",
	})
	e.resetLocked()
}

// endBetting closes the window, commits winner and rotation, and schedules
// the settlement after the reveal delay. Winner and degrees are final from
// this point on.
func (e *Engine) endBetting() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseBetting {
		return
	}

	e.phase = PhaseRunning
	e.countdown = 0
	e.countdownType = ""

	order := e.betList()
	total := e.totalValue()
	if len(order) == 0 || total <= 0 {
		e.phase = PhaseFinished
		e.hub.Publish(hub.Event{
			"type":   "status",
			"status": PhaseFinished,
			"notice": "round ended, no winner",
		})
		e.scheduleReset()
		return
	}

	e.winner = pickWeighted(order, total)
	e.degrees = e.rotationFor(order, total, e.winner)

	e.hub.Publish(hub.Event{
		"type":           "run",
		"winningDegrees": e.degrees,
		"bets":           order,
		"totalBet":       total,
	})

	e.revealClock = clock.Start(e.cfg.RevealDelay, e.cfg.RevealDelay, nil, e.settle)
}

// pickWeighted draws the winner proportionally to staked value.
func pickWeighted(order []Bet, total float64) *Bet {
	r := rng.Float64() * total
	var cum float64
	for i := range order {
		cum += order[i].TotalValue()
		if r < cum {
			return &order[i]
		}
	}
	return &order[len(order)-1]
}

// rotationFor points the wheel at a uniformly random position inside the
// winner's sector, then adds the fixed spin-up turns. Sector layout follows
// join order, matching what clients render.
func (e *Engine) rotationFor(order []Bet, total float64, winner *Bet) float64 {
	var start, end float64
	var cum float64
	for i := range order {
		b := &order[i]
		span := b.TotalValue() / total * 360
		if b.UserID == winner.UserID {
			start = cum
			end = cum + span
			break
		}
		cum += span
	}

	position := start + rng.Float64()*(end-start)
	// invert through the pointer transform the wheel applies on screen
	final := math.Mod(360-position+90, 360)
	if final < 0 {
		final += 360
	}
	return float64(e.cfg.FullRotations)*360 + final
}

// settle pays the committed winner: currency pot minus commission, plus every
// staked gift. Commission is capped at the currency portion because items
// cannot pay a currency commission.
func (e *Engine) settle() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseRunning || e.winner == nil {
		return
	}
	e.phase = PhaseFinished

	order := e.betList()
	potValue := e.totalValue()
	var currencyPot float64
	var giftIDs []string
	for i := range order {
		currencyPot += order[i].Amount
		giftIDs = append(giftIDs, order[i].giftIDs()...)
	}

	commission := round2(potValue * e.cfg.CommissionRate)
	if commission > currencyPot {
		commission = currencyPot
	}
	payout := round2(currencyPot - commission)

	if payout > 0 {
		if err := e.ledger.TransferBalance(models.HouseAccountID, e.winner.UserID, payout); err != nil {
			logger.Error("Failed to pay roulette winner %d: %v", e.winner.UserID, err)
		}
	}
	if commission > 0 {
		if err := e.ledger.TransferBalance(models.HouseAccountID, models.FeeAccountID, commission); err != nil {
			logger.Error("Failed to credit commission: %v", err)
		}
	}
	if len(giftIDs) > 0 {
		if err := e.ledger.TransferGifts(giftIDs, e.winner.UserID); err != nil {
			logger.Error("Failed to transfer staked gifts to winner %d: %v", e.winner.UserID, err)
		}
	}

	if err := e.ledger.RecordTransaction(&models.Transaction{
		UserID: e.winner.UserID,
		Type:   models.TransactionSettlement,
		Amount: payout,
		Fee:    commission,
		Status: models.StatusCompleted,
	}); err != nil {
		logger.Error("Failed to record settlement: %v", err)
	}
	log := models.RouletteRoundLog{
		WinnerID:   e.winner.UserID,
		Pot:        potValue,
		Commission: commission,
		BetCount:   len(order),
		Degrees:    e.degrees,
		EndedAt:    time.Now(),
	}
	if err := e.ledger.DB().Create(&log).Error; err != nil {
		logger.Error("Failed to persist roulette round log: %v", err)
	}

	e.result = &Winner{
		UserID:    e.winner.UserID,
		Amount:    e.winner.Amount,
		WinAmount: payout,
		GiftCount: len(giftIDs),
		Percent:   round2(e.winner.TotalValue() / potValue * 100),
	}

	e.hub.Publish(hub.Event{
		"type":           "winner",
		"winner":         e.result,
		"winningDegrees": e.degrees,
	})
	e.scheduleReset()
}

// scheduleReset arms the cool-down before the next round. Caller holds the
// lock.
func (e *Engine) scheduleReset() {
	e.resetClock = clock.Start(e.cfg.ResetDelay, e.cfg.ResetDelay, nil, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.resetLocked()
	})
}

// resetLocked cancels every outstanding timer in one sweep and returns the
// round to waiting. Caller holds the lock.
func (e *Engine) resetLocked() {
	for _, c := range []*clock.Countdown{e.waitClock, e.betClock, e.revealClock, e.resetClock} {
		if c != nil {
			c.Stop()
		}
	}
	e.waitClock, e.betClock, e.revealClock, e.resetClock = nil, nil, nil, nil

	e.phase = PhaseWaiting
	e.countdown = 0
	e.countdownType = ""
	e.bets = make(map[int64]*Bet)
	e.joinSeq = 0
	e.winner = nil
	e.degrees = 0
	e.result = nil

	e.hub.Publish(hub.Event{
		"type":      "status",
		"status":    PhaseWaiting,
		"countdown": nil,
	})
}

// Reset is the exported entry used at startup and by tests.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

// Subscribe attaches a stream consumer, replaying the current round snapshot
// first.
func (e *Engine) Subscribe() *hub.Subscriber {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := hub.Event{
		"type":          "snapshot",
		"status":        e.phase,
		"countdown":     e.countdown,
		"countdownType": e.countdownType,
		"bets":          e.betList(),
		"totalBet":      e.totalValue(),
	}
	if e.result != nil {
		snap["winner"] = e.result
	}
	if e.degrees > 0 {
		snap["winningDegrees"] = e.degrees
	}
	return e.hub.Subscribe(snap)
}

func (e *Engine) Unsubscribe(s *hub.Subscriber) {
	e.hub.Unsubscribe(s)
}

// betList returns value copies of the bets in join order, which is also the
// wheel sector order. Published events must never alias the live structs:
// subscribers marshal them on their own goroutines after the lock is
// released. Caller holds the lock.
func (e *Engine) betList() []Bet {
	list := make([]Bet, 0, len(e.bets))
	for _, b := range e.bets {
		list = append(list, b.snapshot())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].JoinSeq < list[j].JoinSeq })
	return list
}

func (e *Engine) totalValue() float64 {
	var total float64
	for _, b := range e.bets {
		total += b.TotalValue()
	}
	return total
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
