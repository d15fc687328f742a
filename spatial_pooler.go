package pallium

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/pallium-ai/pallium/internal/bitset"
)

// SpatialPooler maps fixed-width binary input vectors to a sparse,
// distribution-stable set of active column indices via competitive,
// homeostatically regulated online learning.
//
// Column topology is fixed at construction; only permanences, duty cycles,
// and boost factors mutate, and only inside Compute with learn enabled.
// A SpatialPooler is not safe for concurrent use.
type SpatialPooler struct {
	inputSize   int
	columnCount int

	connectedThreshold float64
	permanenceInc      float64
	permanenceDec      float64
	boostStrength      float64
	dutyCyclePeriod    int

	targetDensity float64
	winnerTarget  int
	maxActive     int

	seed     int64
	rng      *rand.Rand
	poolSize int

	// Per-column potential pool: input bit indices and their permanences.
	potential   [][]int32
	permanences [][]float64

	// connected[c] holds one bit per input position; a bit is set while the
	// corresponding potential synapse permanence is at or above threshold.
	connected []*bitset.Bitset

	boost     []float64
	dutyCycle []float64

	// Scratch reused across Compute calls.
	input    *bitset.Bitset
	overlaps []float64
	scratch  []float64

	iteration uint64
}

// NewSpatialPooler creates a spatial pooler from a validated configuration.
func NewSpatialPooler(cfg Config) (*SpatialPooler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	target := cfg.activeColumnTarget()
	maxActive := int(math.Round(cfg.MaxOvershoot * float64(target)))
	if maxActive > cfg.ColumnCount {
		maxActive = cfg.ColumnCount
	}

	sp := &SpatialPooler{
		inputSize:          cfg.InputSize,
		columnCount:        cfg.ColumnCount,
		connectedThreshold: cfg.ConnectedPermanenceThreshold,
		permanenceInc:      cfg.PermanenceIncrement,
		permanenceDec:      cfg.PermanenceDecrement,
		boostStrength:      cfg.BoostStrength,
		dutyCyclePeriod:    cfg.DutyCyclePeriod,
		targetDensity:      cfg.Sparsity,
		winnerTarget:       target,
		maxActive:          maxActive,
		seed:               cfg.Seed,
	}
	sp.initialize(int(cfg.PotentialFraction * float64(cfg.InputSize)))
	return sp, nil
}

// initialize builds the fixed topology and initial learned state from the
// seed. Reset calls it again with the same seed, which reproduces the
// post-construction state exactly.
func (sp *SpatialPooler) initialize(poolSize int) {
	sp.rng = rand.New(rand.NewSource(sp.seed))

	sp.potential = make([][]int32, sp.columnCount)
	sp.permanences = make([][]float64, sp.columnCount)
	sp.connected = make([]*bitset.Bitset, sp.columnCount)
	sp.boost = make([]float64, sp.columnCount)
	sp.dutyCycle = make([]float64, sp.columnCount)
	sp.input = bitset.New(sp.inputSize)
	sp.overlaps = make([]float64, sp.columnCount)
	sp.scratch = make([]float64, sp.columnCount)
	sp.iteration = 0
	sp.poolSize = poolSize

	for c := 0; c < sp.columnCount; c++ {
		pool := sampleIndices(sp.rng, sp.inputSize, poolSize)
		perms := make([]float64, len(pool))
		mask := bitset.New(sp.inputSize)

		for i, bit := range pool {
			// Permanences start near the connected threshold so a few
			// learning steps can connect or disconnect any synapse.
			p := sp.connectedThreshold + (sp.rng.Float64()-0.5)*0.2
			p = clamp01(p)
			perms[i] = p
			if p >= sp.connectedThreshold {
				mask.Set(int(bit))
			}
		}

		sp.potential[c] = pool
		sp.permanences[c] = perms
		sp.connected[c] = mask
		sp.boost[c] = 1.0
		sp.dutyCycle[c] = sp.targetDensity
	}
}

// Compute returns the active column indices for one input vector, in
// ascending order. Input elements must be 0 or 1 and the vector must have
// the configured width; invalid input is rejected before any mutation.
// With learn disabled the call is pure.
func (sp *SpatialPooler) Compute(input []byte, learn bool) ([]int, error) {
	if err := sp.setInput(input); err != nil {
		return nil, err
	}

	for c := 0; c < sp.columnCount; c++ {
		overlap := float64(sp.connected[c].OverlapCount(sp.input))
		sp.overlaps[c] = overlap * sp.boost[c]
	}

	active := sp.inhibit(sp.overlaps)

	if learn {
		if err := sp.learn(active); err != nil {
			return nil, err
		}
	}
	return active, nil
}

// setInput validates the vector and loads it into the scratch bitset.
func (sp *SpatialPooler) setInput(input []byte) error {
	if len(input) != sp.inputSize {
		return newWidthError(sp.inputSize, len(input))
	}
	for i, v := range input {
		if v > 1 {
			return newValueError(i)
		}
	}
	sp.input.Reset()
	for i, v := range input {
		if v == 1 {
			sp.input.Set(i)
		}
	}
	return nil
}

// inhibit performs global k-winners-take-all over boosted overlaps. The
// cutoff is found by partial selection rather than a full sort. Columns
// strictly above the cutoff always win; columns tied at the cutoff are
// admitted in index order up to the overshoot cap.
func (sp *SpatialPooler) inhibit(overlaps []float64) []int {
	cutoff := kthLargest(sp.scratch, overlaps, sp.winnerTarget)

	active := make([]int, 0, sp.maxActive)
	for c, v := range overlaps {
		if v > cutoff {
			active = append(active, c)
		}
	}
	for c, v := range overlaps {
		if len(active) >= sp.maxActive {
			break
		}
		if v == cutoff {
			active = append(active, c)
		}
	}
	sort.Ints(active)
	return active
}

func (sp *SpatialPooler) learn(active []int) error {
	isActive := make(map[int]struct{}, len(active))
	for _, c := range active {
		isActive[c] = struct{}{}

		pool := sp.potential[c]
		perms := sp.permanences[c]
		mask := sp.connected[c]
		for i, bit := range pool {
			p := perms[i]
			if sp.input.Test(int(bit)) {
				p += sp.permanenceInc
			} else {
				p -= sp.permanenceDec
			}
			p = clamp01(p)
			perms[i] = p
			if p >= sp.connectedThreshold {
				mask.Set(int(bit))
			} else {
				mask.Clear(int(bit))
			}
		}
	}

	sp.iteration++
	period := float64(sp.dutyCyclePeriod)
	if sp.iteration < uint64(sp.dutyCyclePeriod) {
		period = float64(sp.iteration)
	}

	for c := 0; c < sp.columnCount; c++ {
		won := 0.0
		if _, ok := isActive[c]; ok {
			won = 1.0
		}
		sp.dutyCycle[c] += (won - sp.dutyCycle[c]) / period

		b := 1.0
		if sp.boostStrength > 0 {
			b = math.Exp(sp.boostStrength * (sp.targetDensity - sp.dutyCycle[c]))
		}
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return newCorruptionError("spatial pooler",
				fmt.Sprintf("non-finite boost factor for column %d", c))
		}
		sp.boost[c] = b
	}
	return nil
}

// Reset returns the pooler to its post-construction state. The same seed is
// reused, so a reset pooler behaves identically to a freshly built one.
func (sp *SpatialPooler) Reset() {
	sp.initialize(sp.poolSize)
}

// kthLargest returns the k-th largest value in src using quickselect over
// the provided scratch slice. k must be within [1, len(src)].
func kthLargest(scratch, src []float64, k int) float64 {
	work := scratch[:len(src)]
	copy(work, src)

	lo, hi := 0, len(work)-1
	idx := k - 1 // selecting in descending order
	for lo < hi {
		pivot := work[lo+(hi-lo)/2]
		i, j := lo, hi
		for i <= j {
			for work[i] > pivot {
				i++
			}
			for work[j] < pivot {
				j--
			}
			if i <= j {
				work[i], work[j] = work[j], work[i]
				i++
				j--
			}
		}
		if idx <= j {
			hi = j
		} else if idx >= i {
			lo = i
		} else {
			break
		}
	}
	return work[idx]
}

// sampleIndices draws k distinct indices from [0, n) via a partial
// Fisher-Yates shuffle and returns them sorted.
func sampleIndices(rng *rand.Rand, n, k int) []int32 {
	if k > n {
		k = n
	}
	idx := make([]int32, n)
	for i := range idx {
		idx[i] = int32(i)
	}
	for i := 0; i < k; i++ {
		j := i + rng.Intn(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	out := idx[:k:k]
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
