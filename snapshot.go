package pallium

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/snappy"
)

// snapshotMagic prefixes every encoded snapshot, followed by a format
// version byte and a snappy-compressed JSON document.
var snapshotMagic = []byte{'P', 'A', 'L', 'S'}

const snapshotVersion = 1

type snapshotState struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`

	InputSize      int `json:"input_size"`
	ColumnCount    int `json:"column_count"`
	CellsPerColumn int `json:"cells_per_column"`

	Spatial  spatialState  `json:"spatial"`
	Temporal temporalState `json:"temporal"`

	Window         []float64 `json:"window"`
	TotalProcessed uint64    `json:"total_processed"`
	TotalAnomalies uint64    `json:"total_anomalies"`
}

type spatialState struct {
	Potential   [][]int32   `json:"potential"`
	Permanences [][]float64 `json:"permanences"`
	Boost       []float64   `json:"boost"`
	DutyCycle   []float64   `json:"duty_cycle"`
	Iteration   uint64      `json:"iteration"`
}

type temporalState struct {
	Segments  []segmentState `json:"segments"`
	LastUsed  []uint64       `json:"last_used"`
	Iteration uint64         `json:"iteration"`
}

type segmentState struct {
	Cell        int32     `json:"cell"`
	Presyn      []int32   `json:"presyn"`
	Permanences []float64 `json:"permanences"`
}

// Snapshot encodes the detector's learned state: permanences, duty cycles,
// boost factors, dendritic segments, the rolling score window, and the
// processing counters. Transient per-step sequence state is not captured;
// after Restore the next vector is treated as the start of a sequence.
// The payload is snappy-compressed; wrap it with an Encryptor for
// encryption at rest.
func (d *Detector) Snapshot() ([]byte, error) {
	st := snapshotState{
		Version:        snapshotVersion,
		CreatedAt:      time.Now().UTC(),
		InputSize:      d.cfg.InputSize,
		ColumnCount:    d.cfg.ColumnCount,
		CellsPerColumn: d.cfg.CellsPerColumn,
		Spatial: spatialState{
			Potential:   d.sp.potential,
			Permanences: d.sp.permanences,
			Boost:       d.sp.boost,
			DutyCycle:   d.sp.dutyCycle,
			Iteration:   d.sp.iteration,
		},
		Window:         d.window.Values(),
		TotalProcessed: d.totalProcessed,
		TotalAnomalies: d.totalAnomalies,
	}

	segs := make([]segmentState, 0, d.tm.SegmentCount())
	for _, seg := range d.tm.segments {
		if seg == nil {
			continue
		}
		ss := segmentState{
			Cell:        seg.cell,
			Presyn:      make([]int32, len(seg.synapses)),
			Permanences: make([]float64, len(seg.synapses)),
		}
		for i, syn := range seg.synapses {
			ss.Presyn[i] = syn.presyn
			ss.Permanences[i] = syn.permanence
		}
		segs = append(segs, ss)
	}
	st.Temporal = temporalState{
		Segments:  segs,
		LastUsed:  d.tm.lastUsed,
		Iteration: d.tm.iteration,
	}

	doc, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	compressed := snappy.Encode(nil, doc)
	out := make([]byte, 0, len(snapshotMagic)+1+len(compressed))
	out = append(out, snapshotMagic...)
	out = append(out, snapshotVersion)
	out = append(out, compressed...)
	return out, nil
}

// Restore replaces the detector's learned state with a previously taken
// snapshot. The snapshot must come from a detector with the same input
// width and topology. Per-step sequence state starts fresh, and the random
// streams are reseeded from the configured seed.
func (d *Detector) Restore(data []byte) error {
	if len(data) < len(snapshotMagic)+1 || !bytes.Equal(data[:len(snapshotMagic)], snapshotMagic) {
		return newSnapshotRestoreError("missing snapshot header")
	}
	if v := data[len(snapshotMagic)]; v != snapshotVersion {
		return newSnapshotRestoreError(fmt.Sprintf("unsupported snapshot version %d", v))
	}

	doc, err := snappy.Decode(nil, data[len(snapshotMagic)+1:])
	if err != nil {
		return newSnapshotRestoreError("corrupt compressed payload")
	}

	var st snapshotState
	if err := json.Unmarshal(doc, &st); err != nil {
		return newSnapshotRestoreError("corrupt snapshot document")
	}

	if st.InputSize != d.cfg.InputSize ||
		st.ColumnCount != d.cfg.ColumnCount ||
		st.CellsPerColumn != d.cfg.CellsPerColumn {
		return newSnapshotRestoreError(fmt.Sprintf(
			"topology mismatch: snapshot %dx%dx%d, detector %dx%dx%d",
			st.InputSize, st.ColumnCount, st.CellsPerColumn,
			d.cfg.InputSize, d.cfg.ColumnCount, d.cfg.CellsPerColumn))
	}

	if err := d.restoreSpatial(st.Spatial); err != nil {
		return err
	}
	if err := d.restoreTemporal(st.Temporal); err != nil {
		return err
	}

	d.window.Reset()
	for _, v := range st.Window {
		d.window.Push(v)
	}
	d.meter.Reset()
	d.totalProcessed = st.TotalProcessed
	d.totalAnomalies = st.TotalAnomalies
	return nil
}

func (d *Detector) restoreSpatial(st spatialState) error {
	sp := d.sp
	if len(st.Potential) != sp.columnCount ||
		len(st.Permanences) != sp.columnCount ||
		len(st.Boost) != sp.columnCount ||
		len(st.DutyCycle) != sp.columnCount {
		return newSnapshotRestoreError("spatial state has wrong column count")
	}

	for c := 0; c < sp.columnCount; c++ {
		pool := st.Potential[c]
		perms := st.Permanences[c]
		if len(pool) != len(perms) {
			return newSnapshotRestoreError("potential pool and permanences diverge")
		}
		for i, bit := range pool {
			if bit < 0 || int(bit) >= sp.inputSize {
				return newSnapshotRestoreError("potential synapse out of input range")
			}
			if perms[i] < 0 || perms[i] > 1 {
				return newSnapshotRestoreError("permanence outside [0,1]")
			}
		}
	}

	sp.initialize(sp.poolSize)
	for c := 0; c < sp.columnCount; c++ {
		sp.potential[c] = st.Potential[c]
		sp.permanences[c] = st.Permanences[c]
		sp.boost[c] = st.Boost[c]
		sp.dutyCycle[c] = st.DutyCycle[c]

		mask := sp.connected[c]
		mask.Reset()
		for i, bit := range st.Potential[c] {
			if st.Permanences[c][i] >= sp.connectedThreshold {
				mask.Set(int(bit))
			}
		}
	}
	sp.iteration = st.Iteration
	return nil
}

func (d *Detector) restoreTemporal(st temporalState) error {
	tm := d.tm
	if len(st.LastUsed) != tm.numCells {
		return newSnapshotRestoreError("temporal state has wrong cell count")
	}
	for _, ss := range st.Segments {
		if ss.Cell < 0 || int(ss.Cell) >= tm.numCells {
			return newSnapshotRestoreError("segment cell out of range")
		}
		if len(ss.Presyn) != len(ss.Permanences) || len(ss.Presyn) == 0 {
			return newSnapshotRestoreError("segment synapse lists diverge or empty")
		}
		for i, presyn := range ss.Presyn {
			if presyn < 0 || int(presyn) >= tm.numCells {
				return newSnapshotRestoreError("synapse source out of range")
			}
			if ss.Permanences[i] <= 0 || ss.Permanences[i] > 1 {
				return newSnapshotRestoreError("synapse permanence outside (0,1]")
			}
		}
	}

	tm.initialize()
	for _, ss := range st.Segments {
		seg := &segment{cell: ss.Cell, synapses: make([]tmSynapse, len(ss.Presyn))}
		for i := range ss.Presyn {
			seg.synapses[i] = tmSynapse{presyn: ss.Presyn[i], permanence: ss.Permanences[i]}
		}
		si := int32(len(tm.segments))
		tm.segments = append(tm.segments, seg)
		tm.cellSegments[ss.Cell] = append(tm.cellSegments[ss.Cell], si)
	}
	copy(tm.lastUsed, st.LastUsed)
	tm.iteration = st.Iteration
	return nil
}

func newSnapshotRestoreError(detail string) error {
	return fmt.Errorf("%w: %s", ErrSnapshotFormat, detail)
}
