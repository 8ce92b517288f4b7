package engine

import (
	"math"
	"math/rand/v2"
)

// Rand is the random source every stochastic step draws from. *rand.Rand
// from math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func clampUnit(p float64) float64 {
	if p < 0 || math.IsNaN(p) {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
