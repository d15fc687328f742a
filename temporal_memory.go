package pallium

import (
	"math/rand"
)

// tmSynapse references a presynaptic cell with a permanence.
type tmSynapse struct {
	presyn     int32
	permanence float64
}

// segment is one dendritic segment owned by a single cell. Segments live in
// a stable-index arena on the TemporalMemory; freed slots are nil and the
// arena is compacted lazily.
type segment struct {
	cell     int32
	synapses []tmSynapse

	// Active synapse counts from the most recent prediction pass, measured
	// against the cells active at that step. activeConn counts connected
	// synapses, activePot counts all positive-permanence synapses.
	activeConn int32
	activePot  int32
}

// TemporalMemory learns recurring sequences of active-column patterns and
// predicts the next step's active cells. Cell topology is fixed at
// construction; segments and synapses are grown during learning and pruned
// when degenerate. A TemporalMemory is not safe for concurrent use.
type TemporalMemory struct {
	columnCount    int
	cellsPerColumn int
	numCells       int

	connectedThreshold  float64
	permanenceInc       float64
	permanenceDec       float64
	predictedDecrement  float64
	activationThreshold int32
	learningThreshold   int32
	maxNewSynapses      int

	seed int64
	rng  *rand.Rand

	segments     []*segment
	freeSegments int
	cellSegments [][]int32

	// Step state. Masks are cleared sparsely through the companion lists.
	activeCells    []int
	activeMask     []bool
	winnerCells    []int
	predictiveList []int
	predictiveMask []bool

	// Segments active against activeCells of the last step.
	activeSegs []int32

	// columnScratch marks active columns while punishing stale predictions.
	columnScratch []bool

	lastUsed  []uint64
	iteration uint64
}

// NewTemporalMemory creates a temporal memory from a validated configuration.
func NewTemporalMemory(cfg Config) (*TemporalMemory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tm := &TemporalMemory{
		columnCount:         cfg.ColumnCount,
		cellsPerColumn:      cfg.CellsPerColumn,
		numCells:            cfg.ColumnCount * cfg.CellsPerColumn,
		connectedThreshold:  cfg.ConnectedPermanenceThreshold,
		permanenceInc:       cfg.PermanenceIncrement,
		permanenceDec:       cfg.PermanenceDecrement,
		predictedDecrement:  cfg.PredictedSegmentDecrement,
		activationThreshold: int32(cfg.ActivationThreshold),
		learningThreshold:   int32(cfg.LearningThreshold),
		maxNewSynapses:      cfg.MaxNewSynapsesPerSegment,
		seed:                cfg.Seed,
	}
	tm.initialize()
	return tm, nil
}

func (tm *TemporalMemory) initialize() {
	// Offset keeps this stream independent from the spatial pooler's,
	// which is seeded with the raw seed.
	tm.rng = rand.New(rand.NewSource(tm.seed + 1))

	tm.segments = nil
	tm.freeSegments = 0
	tm.cellSegments = make([][]int32, tm.numCells)
	tm.activeCells = nil
	tm.activeMask = make([]bool, tm.numCells)
	tm.winnerCells = nil
	tm.predictiveList = nil
	tm.predictiveMask = make([]bool, tm.numCells)
	tm.activeSegs = nil
	tm.columnScratch = make([]bool, tm.columnCount)
	tm.lastUsed = make([]uint64, tm.numCells)
	tm.iteration = 0
}

// Reset returns the temporal memory to its post-initialization state: no
// segments, no cell state, same seed.
func (tm *TemporalMemory) Reset() {
	tm.initialize()
}

// WinnerCells returns the learning cells chosen at the last step, one per
// active column.
func (tm *TemporalMemory) WinnerCells() []int {
	return tm.winnerCells
}

// PredictiveCells returns the cells predicted to activate at the next step.
func (tm *TemporalMemory) PredictiveCells() []int {
	return tm.predictiveList
}

// SegmentCount returns the number of live segments.
func (tm *TemporalMemory) SegmentCount() int {
	return len(tm.segments) - tm.freeSegments
}

// Compute advances the sequence state by one step and returns the fraction
// of active columns that were correctly predicted. An empty column set
// yields 0, meaning "no information" rather than an error.
func (tm *TemporalMemory) Compute(activeColumns []int, learn bool) float64 {
	prevActive := tm.activeCells
	prevActiveMask := tm.activeMask
	prevPredictive := tm.predictiveMask
	hadPredictions := len(tm.predictiveList) > 0
	prevActiveSegs := tm.activeSegs

	tm.iteration++

	var (
		newActive  []int
		newWinners []int
		confirmed  int
	)

	for _, col := range activeColumns {
		base := col * tm.cellsPerColumn

		// Confirmed-prediction pass; skipped entirely when nothing was
		// predictive at the previous step.
		var predicted []int
		if hadPredictions {
			for i := 0; i < tm.cellsPerColumn; i++ {
				cell := base + i
				if prevPredictive[cell] {
					predicted = append(predicted, cell)
				}
			}
		}

		if len(predicted) > 0 {
			confirmed++
			for _, cell := range predicted {
				newActive = append(newActive, cell)
				newWinners = append(newWinners, cell)
				tm.lastUsed[cell] = tm.iteration
				if learn {
					tm.reinforceActiveSegments(cell, prevActive, prevActiveMask)
				}
			}
			continue
		}

		// Burst: every cell in the column fires to preserve ambiguity.
		for i := 0; i < tm.cellsPerColumn; i++ {
			newActive = append(newActive, base+i)
		}

		winner, learnSeg := tm.selectWinner(col)
		newWinners = append(newWinners, winner)
		tm.lastUsed[winner] = tm.iteration

		if learn && len(prevActive) > 0 {
			if learnSeg >= 0 {
				tm.reinforceSegment(tm.segments[learnSeg], prevActive, prevActiveMask)
			} else {
				tm.growSegment(winner, prevActive)
			}
		}
	}

	if learn && hadPredictions {
		tm.punishStalePredictions(activeColumns, prevActiveSegs, prevActiveMask)
	}
	// Swap in the new step state, sparsely clearing the old masks.
	for _, cell := range prevActive {
		tm.activeMask[cell] = false
	}
	tm.activeCells = newActive
	for _, cell := range newActive {
		tm.activeMask[cell] = true
	}
	tm.winnerCells = newWinners

	tm.computePredictions()
	tm.maybeCompact()

	if len(activeColumns) == 0 {
		return 0
	}
	return float64(confirmed) / float64(len(activeColumns))
}

// reinforceActiveSegments reinforces every segment of a confirmed cell that
// was active against the previous step's active cells.
func (tm *TemporalMemory) reinforceActiveSegments(cell int, prevActive []int, prevMask []bool) {
	for _, si := range tm.cellSegments[cell] {
		seg := tm.segments[si]
		if seg == nil || seg.activeConn < tm.activationThreshold {
			continue
		}
		tm.reinforceSegment(seg, prevActive, prevMask)
	}
}

// reinforceSegment strengthens synapses to previously active cells, weakens
// the rest, prunes dead synapses, and grows new synapses toward a sample of
// the previous active set until the segment carries maxNewSynapses potential
// contacts.
func (tm *TemporalMemory) reinforceSegment(seg *segment, prevActive []int, prevMask []bool) {
	kept := seg.synapses[:0]
	for _, syn := range seg.synapses {
		if prevMask[syn.presyn] {
			syn.permanence = clamp01(syn.permanence + tm.permanenceInc)
		} else {
			syn.permanence -= tm.permanenceDec
		}
		if syn.permanence > 0 {
			kept = append(kept, syn)
		}
	}
	seg.synapses = kept

	if want := tm.maxNewSynapses - int(seg.activePot); want > 0 {
		tm.growSynapses(seg, prevActive, want)
	}

	if len(seg.synapses) == 0 {
		tm.destroySegment(seg)
	}
}

// selectWinner picks the learning cell for a bursting column: the cell
// owning the best matching segment, or the least recently used cell when no
// segment matches. Ties break toward lower indices.
func (tm *TemporalMemory) selectWinner(col int) (winner int, learnSeg int32) {
	base := col * tm.cellsPerColumn
	learnSeg = -1

	var bestMatch int32 = 0
	for i := 0; i < tm.cellsPerColumn; i++ {
		cell := base + i
		for _, si := range tm.cellSegments[cell] {
			seg := tm.segments[si]
			if seg == nil {
				continue
			}
			if seg.activePot >= tm.learningThreshold && seg.activePot > bestMatch {
				bestMatch = seg.activePot
				learnSeg = si
				winner = cell
			}
		}
	}
	if learnSeg >= 0 {
		return winner, learnSeg
	}

	winner = base
	oldest := tm.lastUsed[base]
	for i := 1; i < tm.cellsPerColumn; i++ {
		cell := base + i
		if tm.lastUsed[cell] < oldest {
			oldest = tm.lastUsed[cell]
			winner = cell
		}
	}
	return winner, -1
}

// growSegment creates a new segment on the winner cell connected to a sample
// of the previously active cells. Segments are never created empty.
func (tm *TemporalMemory) growSegment(cell int, prevActive []int) {
	seg := &segment{cell: int32(cell)}
	tm.growSynapses(seg, prevActive, tm.maxNewSynapses)
	if len(seg.synapses) == 0 {
		return
	}

	si := int32(len(tm.segments))
	tm.segments = append(tm.segments, seg)
	tm.cellSegments[cell] = append(tm.cellSegments[cell], si)
}

// growSynapses adds up to want synapses from seg to a random sample of
// sources, skipping sources the segment already contacts. New synapses start
// just above the connected threshold so a learned transition predicts on its
// next occurrence.
func (tm *TemporalMemory) growSynapses(seg *segment, sources []int, want int) {
	if want <= 0 || len(sources) == 0 {
		return
	}

	initial := clamp01(tm.connectedThreshold + 0.1)

	// Partial Fisher-Yates over a copy keeps the engine's stream of random
	// draws deterministic for a given seed and input sequence.
	pool := make([]int, len(sources))
	copy(pool, sources)
	n := len(pool)

	for added := 0; added < want && n > 0; {
		j := tm.rng.Intn(n)
		src := pool[j]
		n--
		pool[j] = pool[n]

		if int32(src) == seg.cell || seg.contacts(int32(src)) {
			continue
		}
		seg.synapses = append(seg.synapses, tmSynapse{presyn: int32(src), permanence: initial})
		added++
	}
}

func (s *segment) contacts(presyn int32) bool {
	for _, syn := range s.synapses {
		if syn.presyn == presyn {
			return true
		}
	}
	return false
}

// punishStalePredictions decrements segments that predicted a column which
// did not become active, bounding false-positive growth.
func (tm *TemporalMemory) punishStalePredictions(activeColumns []int, prevActiveSegs []int32, prevMask []bool) {
	if tm.predictedDecrement == 0 {
		return
	}

	for _, col := range activeColumns {
		tm.columnScratch[col] = true
	}

	for _, si := range prevActiveSegs {
		seg := tm.segments[si]
		if seg == nil {
			continue
		}
		col := int(seg.cell) / tm.cellsPerColumn
		if tm.columnScratch[col] {
			continue
		}
		kept := seg.synapses[:0]
		for _, syn := range seg.synapses {
			if prevMask[syn.presyn] {
				syn.permanence -= tm.predictedDecrement
			}
			if syn.permanence > 0 {
				kept = append(kept, syn)
			}
		}
		seg.synapses = kept
		if len(seg.synapses) == 0 {
			tm.destroySegment(seg)
		}
	}

	for _, col := range activeColumns {
		tm.columnScratch[col] = false
	}
}

// computePredictions evaluates every live segment against the current active
// cells and derives the predictive cell set for the next step. Cells without
// segments are never visited; with no active cells the pass is skipped.
func (tm *TemporalMemory) computePredictions() {
	for _, cell := range tm.predictiveList {
		tm.predictiveMask[cell] = false
	}
	tm.predictiveList = tm.predictiveList[:0]
	tm.activeSegs = tm.activeSegs[:0]

	if len(tm.activeCells) == 0 {
		for _, seg := range tm.segments {
			if seg != nil {
				seg.activeConn = 0
				seg.activePot = 0
			}
		}
		return
	}

	for si, seg := range tm.segments {
		if seg == nil {
			continue
		}
		var conn, pot int32
		for _, syn := range seg.synapses {
			if !tm.activeMask[syn.presyn] {
				continue
			}
			pot++
			if syn.permanence >= tm.connectedThreshold {
				conn++
			}
		}
		seg.activeConn = conn
		seg.activePot = pot

		if conn >= tm.activationThreshold {
			tm.activeSegs = append(tm.activeSegs, int32(si))
			cell := int(seg.cell)
			if !tm.predictiveMask[cell] {
				tm.predictiveMask[cell] = true
				tm.predictiveList = append(tm.predictiveList, cell)
			}
		}
	}
}

// destroySegment frees a segment's arena slot and unlinks it from its cell.
func (tm *TemporalMemory) destroySegment(seg *segment) {
	cell := int(seg.cell)
	list := tm.cellSegments[cell]
	for i, si := range list {
		if tm.segments[si] == seg {
			tm.segments[si] = nil
			tm.freeSegments++
			tm.cellSegments[cell] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// maybeCompact rebuilds the segment arena once more than half its slots are
// free. Indices are reassigned, so compaction runs only between steps when
// no per-step segment references are held.
func (tm *TemporalMemory) maybeCompact() {
	if len(tm.segments) < 64 || tm.freeSegments*2 < len(tm.segments) {
		return
	}

	compacted := make([]*segment, 0, len(tm.segments)-tm.freeSegments)
	for cell := range tm.cellSegments {
		if len(tm.cellSegments[cell]) == 0 {
			continue
		}
		list := tm.cellSegments[cell][:0]
		for _, si := range tm.cellSegments[cell] {
			seg := tm.segments[si]
			if seg == nil {
				continue
			}
			list = append(list, int32(len(compacted)))
			compacted = append(compacted, seg)
		}
		tm.cellSegments[cell] = list
	}
	tm.segments = compacted
	tm.freeSegments = 0

	// The per-step active segment list is invalidated by compaction.
	tm.activeSegs = tm.activeSegs[:0]
}
