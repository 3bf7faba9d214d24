package benchmark

import (
	"math"
	mrand "math/rand"
	"sync/atomic"
)

// KeyDistribution defines how keys are accessed
type KeyDistribution string

const (
	DistUniform    KeyDistribution = "uniform"    // All keys equally likely
	DistZipfian    KeyDistribution = "zipfian"    // 80/20 rule (realistic)
	DistSequential KeyDistribution = "sequential" // Sequential access
	DistLatest     KeyDistribution = "latest"     // Recent keys (time-series)
)

// KeyGenerator generates uint32 index keys according to a distribution.
type KeyGenerator struct {
	numKeys      int
	distribution KeyDistribution
	rng          *mrand.Rand

	// For Zipfian distribution
	zipf *mrand.Zipf

	// For sequential
	seqCounter atomic.Int64
}

func NewKeyGenerator(numKeys int, distribution KeyDistribution, seed int64) *KeyGenerator {
	rng := mrand.New(mrand.NewSource(seed))

	kg := &KeyGenerator{
		numKeys:      numKeys,
		distribution: distribution,
		rng:          rng,
	}

	// Setup Zipfian if needed (80/20 distribution)
	if distribution == DistZipfian {
		kg.zipf = mrand.NewZipf(rng, 1.1, 1, uint64(numKeys))
	}

	return kg
}

func (kg *KeyGenerator) NextKey() uint32 {
	var keyNum int

	switch kg.distribution {
	case DistUniform:
		keyNum = kg.rng.Intn(kg.numKeys)

	case DistZipfian:
		keyNum = int(kg.zipf.Uint64())

	case DistSequential:
		keyNum = int(kg.seqCounter.Add(1) % int64(kg.numKeys))

	case DistLatest:
		// Access recent keys more often (half-normal falloff from the newest key)
		range_ := kg.numKeys / 10
		if range_ < 100 {
			range_ = 100
		}
		offset := int(math.Abs(kg.rng.NormFloat64()) * float64(range_))
		keyNum = kg.numKeys - 1 - offset
		if keyNum < 0 {
			keyNum = 0
		}

	default:
		keyNum = kg.rng.Intn(kg.numKeys)
	}

	return uint32(keyNum)
}

func (kg *KeyGenerator) GenerateSequential(n int) uint32 { return uint32(n) }
