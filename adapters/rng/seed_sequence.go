package rng

import (
	"context"
	"fmt"
	"math/rand"

	"globalsig/ports"
)

// SeedSequence implements RNGPort by expanding a root seed into
// well-separated child seeds with the splitmix64 generator.
type SeedSequence struct{}

// NewSeedSequence returns the seed-sequence RNG adapter
func NewSeedSequence() ports.RNGPort {
	return &SeedSequence{}
}

// SeededStream creates a deterministic random number generator for a named operation
func (s *SeedSequence) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if name != "" {
		seed = int64(mix64(uint64(seed) ^ uint64(hashString(name))))
	}
	return rand.New(rand.NewSource(seed)), nil
}

// Spawn derives n child streams from rootSeed
func (s *SeedSequence) Spawn(ctx context.Context, rootSeed int64, n int) ([]*rand.Rand, error) {
	if n <= 0 {
		return nil, fmt.Errorf("cannot spawn %d streams", n)
	}
	streams := make([]*rand.Rand, n)
	state := uint64(rootSeed)
	for i := range streams {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		state += 0x9e3779b97f4a7c15
		streams[i] = rand.New(rand.NewSource(int64(mix64(state))))
	}
	return streams, nil
}

// mix64 is the splitmix64 output function
func mix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2 algorithm
	}
	return hash
}
