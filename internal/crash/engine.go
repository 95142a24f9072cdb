package crash

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
	PhaseBetting = "betting"
	PhaseRunning = "running"
	PhaseCrashed = "crashed"
)

const (
	BetOngoing = "ongoing"
	BetCashed  = "cashed"
	BetLost    = "lost"
)

var (
	ErrBettingClosed   = errors.New("betting is closed")
	ErrBetTooSmall     = errors.New("bet is below the minimum stake")
	ErrExistingBet     = errors.New("user already has a bet in this round")
	ErrRoundNotRunning = errors.New("round is not running")
	ErrNoActiveBet     = errors.New("no active bet to cash out")
	ErrCashOutInFlight = errors.New("cash-out already in progress")
	ErrBadMultiplier   = errors.New("invalid cash-out multiplier")
)

type Config struct {
	BettingWindow    time.Duration
	TickInterval     time.Duration
	Cooldown         time.Duration
	GrowthStep       float64
	MinBet           float64
	HouseEdge        float64
	InstantCrashOdds int // instant 1.00x crash with probability 1/InstantCrashOdds
	MaxMultiplier    float64
	HistorySize      int
	StreakArmMin     int // next streak triggers this many rounds ahead, lower bound
	StreakArmMax     int
	StreakLenMin     int
	StreakLenMax     int
	StreakCap        float64 // upper bound of the biased-low draw, before house edge
}

func DefaultConfig() Config {
	return Config{
		BettingWindow:    5 * time.Second,
		TickInterval:     500 * time.Millisecond,
		Cooldown:         5 * time.Second,
		GrowthStep:       1.05,
		MinBet:           0.01,
		HouseEdge:        0.01,
		InstantCrashOdds: 50,
		MaxMultiplier:    100.0,
		HistorySize:      10,
		StreakArmMin:     100,
		StreakArmMax:     200,
		StreakLenMin:     3,
		StreakLenMax:     7,
		StreakCap:        1.8,
	}
}

// Bet lives for one round only.
type Bet struct {
	UserID  int64          `json:"userId"`
	Amount  float64        `json:"amount"`
	Status  string         `json:"status"`
	Win     float64        `json:"win"`
	JoinSeq int64          `json:"-"`
	Profile models.Profile `json:"profile"`
}

// Engine drives the crash round state machine. All round state is owned by
// the engine and guarded by one mutex; timers re-enter through methods that
// take the same lock, so there is never more than one writer.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	ledger *ledger.Ledger
	hub    *hub.Hub

	phase      string
	countdown  int
	multiplier float64
	crashPoint float64
	startedAt  time.Time
	bets       map[int64]*Bet
	joinSeq    int64
	history    []float64
	round      int64

	streakLeft   int
	nextStreakAt int64

	cashingOut map[int64]struct{}

	countdownClock *clock.Countdown
	bettingDone    chan struct{}
}

func NewEngine(cfg Config, l *ledger.Ledger, h *hub.Hub) *Engine {
	e := &Engine{
		cfg:        cfg,
		ledger:     l,
		hub:        h,
		phase:      PhaseCrashed,
		multiplier: 1.0,
		bets:       make(map[int64]*Bet),
		cashingOut: make(map[int64]struct{}),
	}
	e.nextStreakAt = int64(rng.Range(cfg.StreakArmMin, cfg.StreakArmMax))
	return e
}

// Supervise restarts the round loop if it ever panics.
func (e *Engine) Supervise() {
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Crash game loop panicked: %v", r)
				}
			}()
			e.run()
		}()
		time.Sleep(5 * time.Second)
	}
}

func (e *Engine) run() {
	for {
		e.openBetting()
		<-e.bettingDone
		e.beginRunning()
		e.tickUntilCrash()
		time.Sleep(e.cfg.Cooldown)
	}
}

// openBetting resets round state and arms the betting countdown.
func (e *Engine) openBetting() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.countdownClock != nil {
		e.countdownClock.Stop()
	}

	e.phase = PhaseBetting
	e.bets = make(map[int64]*Bet)
	e.cashingOut = make(map[int64]struct{})
	e.joinSeq = 0
	e.multiplier = 1.0
	e.crashPoint = 0
	e.round++
	e.countdown = int(e.cfg.BettingWindow / time.Second)

	if e.round >= e.nextStreakAt && e.streakLeft == 0 {
		e.streakLeft = rng.Range(e.cfg.StreakLenMin, e.cfg.StreakLenMax)
		e.nextStreakAt = e.round + int64(rng.Range(e.cfg.StreakArmMin, e.cfg.StreakArmMax))
		logger.Info("Crash streak armed for %d rounds, next at round %d", e.streakLeft, e.nextStreakAt)
	}

	e.hub.Publish(hub.Event{
		"type":      "status",
		"status":    PhaseBetting,
		"countdown": e.countdown,
		"bets":      e.betList(),
		"history":   append([]float64(nil), e.history...),
	})

	e.bettingDone = make(chan struct{})
	done := e.bettingDone
	e.countdownClock = clock.Start(e.cfg.BettingWindow, time.Second,
		func(remaining int) {
			e.mu.Lock()
			e.countdown = remaining
			e.hub.Publish(hub.Event{"type": "countdown", "countdown": remaining})
			e.mu.Unlock()
		},
		func() {
			close(done)
		})
}

// beginRunning fixes the crash point for the round. It is drawn exactly once
// here and never recomputed; clients only ever see it approached tick by
// tick.
func (e *Engine) beginRunning() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.phase = PhaseRunning
	e.countdown = 0
	e.multiplier = 1.0
	e.startedAt = time.Now()
	e.crashPoint = e.drawCrashPoint()

	e.hub.Publish(hub.Event{
		"type":   "status",
		"status": PhaseRunning,
		"bets":   e.betList(),
	})
}

func (e *Engine) drawCrashPoint() float64 {
	if e.streakLeft > 0 {
		e.streakLeft--
		point := 1.0 + rng.Float64()*(e.cfg.StreakCap-1.0)
		point *= 1 - e.cfg.HouseEdge
		return math.Max(1.0, round2(point))
	}

	if e.cfg.InstantCrashOdds > 0 && rng.IntN(e.cfg.InstantCrashOdds) == 0 {
		return 1.0
	}

	point := 1.0 / (1.0 - rng.Float64())
	point *= 1 - e.cfg.HouseEdge
	point = math.Min(point, e.cfg.MaxMultiplier)
	return math.Max(1.0, round2(point))
}

// tickUntilCrash grows the multiplier on a fixed cadence until it reaches the
// stored crash point, then settles the round.
func (e *Engine) tickUntilCrash() {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for range ticker.C {
		if e.step() {
			return
		}
	}
}

// step advances the multiplier one tick. Returns true once the round has
// crashed.
func (e *Engine) step() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseRunning {
		return true
	}

	e.multiplier = round2(e.multiplier * e.cfg.GrowthStep)
	if e.multiplier >= e.crashPoint {
		e.crash()
		return true
	}

	e.hub.Publish(hub.Event{
		"type":       "tick",
		"multiplier": e.multiplier,
		"bets":       e.betList(),
	})
	return false
}

// crash settles the round: every bet still ongoing is lost. Caller holds the
// lock.
func (e *Engine) crash() {
	e.phase = PhaseCrashed
	e.multiplier = e.crashPoint

	var total float64
	for _, bet := range e.bets {
		total += bet.Amount
		if bet.Status == BetOngoing {
			bet.Status = BetLost
			bet.Win = 0
		}
	}

	e.history = append([]float64{e.crashPoint}, e.history...)
	if len(e.history) > e.cfg.HistorySize {
		e.history = e.history[:e.cfg.HistorySize]
	}

	log := models.CrashRoundLog{
		CrashPoint: e.crashPoint,
		BetCount:   len(e.bets),
		TotalBet:   total,
		StartedAt:  e.startedAt,
		EndedAt:    time.Now(),
	}
	if err := e.ledger.DB().Create(&log).Error; err != nil {
		logger.Error("Failed to persist crash round log: %v", err)
	}

	e.hub.Publish(hub.Event{
		"type":    "crash",
		"crashAt": e.crashPoint,
		"bets":    e.betList(),
		"history": append([]float64(nil), e.history...),
	})
}

// PlaceBet debits the stake into the house account and registers the bet.
func (e *Engine) PlaceBet(userID int64, amount float64, profile models.Profile) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseBetting {
		return ErrBettingClosed
	}
	if amount < e.cfg.MinBet {
		return ErrBetTooSmall
	}
	if _, ok := e.bets[userID]; ok {
		return ErrExistingBet
	}

	if err := e.ledger.TransferBalance(userID, models.HouseAccountID, amount); err != nil {
		return err
	}

	e.joinSeq++
	bet := &Bet{
		UserID:  userID,
		Amount:  amount,
		Status:  BetOngoing,
		JoinSeq: e.joinSeq,
		Profile: profile,
	}
	e.bets[userID] = bet

	e.hub.Publish(hub.Event{
		"type": "bet",
		"bet":  *bet,
		"bets": e.betList(),
	})
	return nil
}

// CashOut pays out an ongoing bet at the claimed multiplier. A second call
// for the same user while the first is still moving money is rejected: the
// ledger transfer happens outside the engine lock, so single-threaded
// execution alone does not cover it.
func (e *Engine) CashOut(userID int64, multiplier float64) (float64, error) {
	e.mu.Lock()
	if e.phase != PhaseRunning {
		e.mu.Unlock()
		return 0, ErrRoundNotRunning
	}
	bet, ok := e.bets[userID]
	if !ok || bet.Status != BetOngoing {
		e.mu.Unlock()
		return 0, ErrNoActiveBet
	}
	if _, busy := e.cashingOut[userID]; busy {
		e.mu.Unlock()
		return 0, ErrCashOutInFlight
	}
	if multiplier < 1.0 || multiplier > e.multiplier+0.01 {
		e.mu.Unlock()
		return 0, ErrBadMultiplier
	}
	e.cashingOut[userID] = struct{}{}
	amount := bet.Amount
	e.mu.Unlock()

	win := round2(amount * multiplier)
	err := e.ledger.TransferBalance(models.HouseAccountID, userID, win)

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cashingOut, userID)

	if err != nil {
		return 0, err
	}

	bet.Status = BetCashed
	bet.Win = win
	e.hub.Publish(hub.Event{
		"type":   "cashout",
		"userId": userID,
		"win":    win,
		"bets":   e.betList(),
	})
	return win, nil
}

// Subscribe attaches a stream consumer, replaying the current round snapshot
// first.
func (e *Engine) Subscribe() *hub.Subscriber {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hub.Subscribe(e.snapshotLocked())
}

func (e *Engine) Unsubscribe(s *hub.Subscriber) {
	e.hub.Unsubscribe(s)
}

func (e *Engine) snapshotLocked() hub.Event {
	return hub.Event{
		"type":       "snapshot",
		"status":     e.phase,
		"countdown":  e.countdown,
		"multiplier": e.multiplier,
		"bets":       e.betList(),
		"history":    append([]float64(nil), e.history...),
	}
}

// betList returns value copies of the bets in join order. Published events
// must never alias the live structs: subscribers marshal them on their own
// goroutines after the lock is released. Caller holds the lock.
func (e *Engine) betList() []Bet {
	list := make([]Bet, 0, len(e.bets))
	for _, b := range e.bets {
		list = append(list, *b)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].JoinSeq < list[j].JoinSeq })
	return list
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
