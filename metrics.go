package aec

import "github.com/rustyguts/bken-aec/internal/dtd"

// BlockMetrics is the per-block diagnostic output of ProcessBlock, per
// spec §3 and §6. It is cheap to compute: every field except Err is a
// value copied out of the pipeline's internal state, and Err is only
// allocated for a block that hits an error.
type BlockMetrics struct {
	// EstimatedDelay is C2's current delay estimate, in samples.
	EstimatedDelay uint32

	// DoubleTalk is true if C4 classified this block as DoubleTalk or
	// Hold (i.e. adaptation was frozen).
	DoubleTalk bool

	// DtdState is C4's FSM state after processing this block.
	DtdState dtd.State

	// Erle is the Echo Return Loss Enhancement for this block, in dB,
	// clamped to [0, 60] per property 8.
	Erle float64

	// FilterNorm is the L2 norm of the NLMS tap weights.
	FilterNorm float64

	// Err is non-nil when this block hit a non-fatal condition from the
	// error taxonomy in spec §7 (ErrBlockSizeMismatch, ErrNonFiniteInput).
	// ProcessBlock still returns a usable (possibly silent) output.
	Err error
}

// AggregateMetrics is the control-channel snapshot pushed by the
// BlockProcessor (C7) at MetricsInterval cadence or on demand, per
// spec §6. It mirrors BlockMetrics but adds running counters that only
// make sense averaged or accumulated across many blocks.
type AggregateMetrics struct {
	// SamplesProcessed is the running count of samples ProcessBlock has
	// consumed since the last Reset.
	SamplesProcessed uint64

	// BlocksProcessed is the running count of blocks ProcessBlock has
	// consumed since the last Reset.
	BlocksProcessed uint64

	// EstimatedDelay, DtdState and FilterNorm mirror the latest
	// BlockMetrics values at the time this snapshot was taken.
	EstimatedDelay uint32
	DtdState       dtd.State
	FilterNorm     float64

	// MeanErle is the arithmetic mean of Erle across the blocks since
	// the last snapshot, clamped to [0, 60].
	MeanErle float64

	// DoubleTalkBlocks counts blocks classified DoubleTalk or Hold since
	// the last snapshot.
	DoubleTalkBlocks uint64

	// ErrorCount counts non-fatal errors (BlockMetrics.Err != nil) since
	// the last snapshot.
	ErrorCount uint64
}
