package generator

import (
	"crypto/rand"
	"math"
	"math/big"
	mrand "math/rand/v2"
)

// SeedSource supplies random seeds. *math/rand/v2.Rand satisfies it.
type SeedSource interface {
	Uint32() uint32
}

type cryptoSeeds struct{}

func (cryptoSeeds) Uint32() uint32 {
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxUint32))
	if err != nil {
		return mrand.Uint32()
	}
	return uint32(n.Int64()) + 1
}

// randomSeed draws until the source yields a non-zero value.
func randomSeed(src SeedSource) uint32 {
	for {
		if s := src.Uint32(); s != 0 {
			return s
		}
	}
}

// seedAt is the seed for image index of a batch starting at base. Seeds
// advance by one per image and skip zero when they wrap.
func seedAt(base uint32, index int) uint32 {
	s := base + uint32(index)
	if s < base {
		s++
	}
	return s
}
