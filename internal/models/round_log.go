package models

import "time"

// CrashRoundLog is an append-only record of a finished crash round.
type CrashRoundLog struct {
	ID         int64   `gorm:"primaryKey,autoIncrement" json:"id"`
	CrashPoint float64 `gorm:"not null" json:"crash_point"`
	BetCount   int     `json:"bet_count"`
	TotalBet   float64 `json:"total_bet"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// RouletteRoundLog is an append-only record of a settled roulette round.
type RouletteRoundLog struct {
	ID         int64   `gorm:"primaryKey,autoIncrement" json:"id"`
	WinnerID   int64   `gorm:"index" json:"winner_id"`
	Pot        float64 `json:"pot"`
	Commission float64 `json:"commission"`
	BetCount   int     `json:"bet_count"`
	Degrees    float64 `json:"degrees"`
	EndedAt    time.Time `json:"ended_at"`
}
