// Package pallium is a streaming anomaly-detection engine built on cortical
// sparse-coding and sequence-memory algorithms. It converts a stream of
// fixed-width binary observation vectors into a bounded anomaly score,
// learning normal temporal patterns online and flagging deviations as they
// happen.
//
// The engine is a synchronous in-memory numeric core: a SpatialPooler
// encodes each vector as a sparse set of active columns, a TemporalMemory
// learns which column patterns follow which, and a Detector turns the
// prediction-miss ratio into a score with rolling statistics and
// classification. Encoding raw messages into binary vectors and transport
// are left to the caller; optional snapshot stores (file, SQLite, S3) are
// provided for checkpointing learned state.
//
// # Basic Usage
//
// Create a detector with default configuration:
//
//	det, err := pallium.New(pallium.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Feed binary vectors from your encoder and inspect scores:
//
//	score, err := det.Compute(vector, true)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if det.IsAnomalous(score) {
//	    // handle the anomaly
//	}
//
// A Detector must be driven by a single goroutine. Independent detectors
// share nothing and may run in parallel.
package pallium
