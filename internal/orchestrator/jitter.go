package orchestrator

import (
	"math/rand"
	"time"
)

// JitterSource provides deterministic per-instance start jitter. The same
// seed and index always produce the same offset, so a rerun with a fixed
// seed reproduces the ramp.
type JitterSource struct {
	seed int64
}

// NewJitterSource creates a jitter source with the given seed.
func NewJitterSource(seed int64) *JitterSource {
	return &JitterSource{seed: seed}
}

// NewJitterSourceFromTime creates a jitter source seeded from the current time.
func NewJitterSourceFromTime() *JitterSource {
	return NewJitterSource(time.Now().UnixNano())
}

// ForInstance returns a random number generator seeded for the instance
// at index.
func (j *JitterSource) ForInstance(index int) *rand.Rand {
	return rand.New(rand.NewSource(int64(index) ^ j.seed))
}

// InstanceJitter returns a jitter duration for the instance at index
// within [0, maxJitter).
func (j *JitterSource) InstanceJitter(index int, maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 {
		return 0
	}
	return time.Duration(j.ForInstance(index).Int63n(int64(maxJitter)))
}
