// Package entropy provides reproducible probability rolls.
// Every roll is a pure function of the world seed, the simulation time and a
// set of keys, so a saved world replays the same outcomes after restore
// without persisting generator state.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"hash/fnv"
	"math"
)

// Source derives rolls from a world seed.
type Source struct {
	seed uint64
}

// New returns a source for the given seed.
func New(seed int64) Source {
	return Source{seed: uint64(seed)}
}

// Seed returns the world seed.
func (s Source) Seed() int64 {
	return int64(s.seed)
}

// Roll returns a value in [0, 1) for the given time and keys.
func (s Source) Roll(t float64, keys ...string) float64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], s.seed)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(t))
	h.Write(buf[:])
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	n := mix(h.Sum64())
	return float64(n>>11) / float64(1<<53)
}

// Chance reports whether a roll lands under p.
func (s Source) Chance(p, t float64, keys ...string) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return s.Roll(t, keys...) < p
}

// Between returns a roll scaled into [lo, hi).
func (s Source) Between(lo, hi, t float64, keys ...string) float64 {
	return lo + (hi-lo)*s.Roll(t, keys...)
}

// mix is the splitmix64 finalizer; FNV alone clusters on short keys.
func mix(z uint64) uint64 {
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	z *= 0x94d049bb133111eb
	z ^= z >> 31
	return z
}

// RandomSeed returns a non-zero seed from crypto/rand for fresh worlds.
func RandomSeed() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 1
	}
	seed := int64(binary.LittleEndian.Uint64(b[:]) >> 1)
	if seed == 0 {
		seed = 1
	}
	return seed
}
