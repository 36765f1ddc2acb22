package randutil

import (
	rand "math/rand/v2"
	"time"
)

const (
	goldenRatio64 = 0x9e3779b97f4a7c15
)

// New returns a *rand.Rand seeded deterministically from the provided int64.
// Every poller derives its PCG seeds the same way so tests can replay a
// schedule.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// Jitter returns base shifted by a uniform offset in [-spread, +spread].
// The result never drops below half of base.
func Jitter(r *rand.Rand, base, spread time.Duration) time.Duration {
	if spread <= 0 || r == nil {
		return base
	}
	d := base + time.Duration(r.Int64N(int64(2*spread)+1)) - spread
	if floor := base / 2; d < floor {
		return floor
	}
	return d
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
