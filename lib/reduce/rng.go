package reduce

import (
	"math"
)

var (
	xorshiftMaxUint = float64(math.MaxUint32)
)

// RNG is an xorshift random number generator. It is deliberately tiny so
// that every cell of a partition can carry its own independent generator.
// It is not thread safe; workers must not share one.
type RNG struct {
	w, x, y, z uint32
}

// NewRNG initializes an RNG with a given seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{ uint32(seed), 123456789, 362436069, 521288629 }
}

// Uniform generates a single random number in the range [0, 1).
func (gen *RNG) Uniform() float64 {
	t := gen.x ^ (gen.x << 11)
	gen.x, gen.y, gen.z = gen.y, gen.z, gen.w
	gen.w = gen.w ^ (gen.w >> 19) ^ (t ^ (t >> 8))
	res := float64(math.MaxUint32 - gen.w) / xorshiftMaxUint
	if res == 1.0 { return gen.Uniform() }
	return res
}

// Intn generates a single random integer in the range [0, n).
func (gen *RNG) Intn(n int) int {
	i := int(gen.Uniform() * float64(n))
	if i >= n { i = n - 1 }
	return i
}

// CellSeed derives the seed for one cell's generator from the run seed and
// the cell's identifier. The derivation is a SplitMix64 step, so nearby cell
// IDs still get well-separated generator states and a run is reproducible
// regardless of how cells are scheduled across workers.
func CellSeed(runSeed uint64, cellID int) uint64 {
	z := runSeed + 0x9e3779b97f4a7c15*uint64(cellID+1)
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
