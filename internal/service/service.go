package service

import (
	"github.com/go-playground/validator/v10"

	"github.com/Moonlightintherain/q/internal/crash"
	"github.com/Moonlightintherain/q/internal/gifts"
	"github.com/Moonlightintherain/q/internal/ledger"
	"github.com/Moonlightintherain/q/internal/roulette"
	"github.com/Moonlightintherain/q/pkg/telegram"
	"github.com/Moonlightintherain/q/pkg/ton"
)

var validate = validator.New()

// Service wires the HTTP and websocket surface to the engines and the
// ledger.
type Service struct {
	Ledger   *ledger.Ledger
	Gifts    *gifts.Service
	Crash    *crash.Engine
	Roulette *roulette.Engine
	TON      *ton.Client
	Notifier *telegram.Notifier
}

func New(l *ledger.Ledger, g *gifts.Service, c *crash.Engine, r *roulette.Engine, t *ton.Client, n *telegram.Notifier) *Service {
	return &Service{
		Ledger:   l,
		Gifts:    g,
		Crash:    c,
		Roulette: r,
		TON:      t,
		Notifier: n,
	}
}
