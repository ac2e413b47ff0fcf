package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a named operation
	SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error)

	// Spawn derives n statistically independent child streams from one root seed.
	// The same root seed and n always yield the same streams.
	Spawn(ctx context.Context, rootSeed int64, n int) ([]*rand.Rand, error)
}
