package hasher

import (
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/xxh3"
)

// Algorithm names a fixed-seed 64-bit content hash.
type Algorithm string

const (
	// XXH64 is XXH64 with seed 0, the default.
	XXH64 Algorithm = "xxh64"
	// XXH3 is XXH3-64 with seed 0. Faster on large inputs, different
	// fingerprints from XXH64.
	XXH3 Algorithm = "xxh3"
)

// accumulator is the streaming side of a 64-bit hash.
type accumulator interface {
	io.Writer
	Sum64() uint64
}

// ParseAlgorithm validates an algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case XXH64, "":
		return XXH64, nil
	case XXH3:
		return XXH3, nil
	default:
		return "", fmt.Errorf("unknown hash algorithm %q (want %s or %s)", s, XXH64, XXH3)
	}
}

func (a Algorithm) new() accumulator {
	if a == XXH3 {
		return xxh3.New()
	}
	return xxhash.New()
}
