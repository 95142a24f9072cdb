package rng

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/Moonlightintherain/q/pkg/logger"
)

// Outcome draws move real currency, so they come from the platform CSPRNG
// rather than math/rand.

// Float64 returns a uniform value in [0, 1).
func Float64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		logger.Fatal("crypto/rand unavailable: %v", err)
	}
	// 53 bits of mantissa, same construction as math/rand.Float64.
	return float64(binary.BigEndian.Uint64(buf[:])>>11) / (1 << 53)
}

// IntN returns a uniform value in [0, n).
func IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return int(Float64() * float64(n))
}

// Range returns a uniform value in [min, max).
func Range(min, max int) int {
	if max <= min {
		return min
	}
	return min + IntN(max-min)
}
