// Package aec provides a streaming acoustic echo canceller built from
// five cooperating DSP components: a reference delay line, a bulk
// delay estimator, an NLMS adaptive filter, a double-talk detector and
// a residual suppressor. EchoCanceller (this file) wires them into the
// per-block pipeline; BlockProcessor (blockprocessor.go) wraps it in a
// control/metrics channel surface for a real-time host loop.
package aec

import (
	"fmt"
	"math"

	"github.com/rustyguts/bken-aec/internal/delayest"
	"github.com/rustyguts/bken-aec/internal/delayline"
	"github.com/rustyguts/bken-aec/internal/dtd"
	"github.com/rustyguts/bken-aec/internal/nlms"
	"github.com/rustyguts/bken-aec/internal/suppressor"
)

// EchoCanceller is the C6 orchestrator: it owns one instance of each
// DSP component and drives them through the nine-step algorithm in
// spec §4.6 on every ProcessBlock call. It is not safe for concurrent
// use; callers that need a channel-synchronized surface should use
// BlockProcessor instead.
type EchoCanceller struct {
	cfg Config

	refLine *delayline.DelayLine
	delayEr *delayest.Estimator
	filter  *nlms.Filter
	detect  *dtd.Detector
	suppr   suppressor.Suppressor

	// alignedRef is a scratch buffer reused across ProcessBlock calls to
	// avoid per-block allocation on the hot path.
	alignedRef []float32

	samplesProcessed uint64
	blocksProcessed  uint64
}

// New constructs an EchoCanceller from cfg, validating it first per
// spec §7's ConfigurationError. Construction failure is the only error
// this package treats as fatal.
func New(cfg Config) (*EchoCanceller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	refLine, err := delayline.New(cfg.delayLineCapacity())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	delayEr, err := delayest.New(cfg.MaxDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	filter, err := nlms.New(cfg.FilterLength, nlms.Config{
		StepSize:       cfg.StepSize,
		Leakage:        cfg.LeakageFactor,
		Regularization: cfg.Regularization,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	detect, err := dtd.New(cfg.WindowSize, dtd.Config{
		PowerRatioThreshold:  cfg.PowerRatioThreshold,
		CorrelationThreshold: cfg.CorrelationThreshold,
		HangoverSamples:      cfg.HangoverSamples,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return &EchoCanceller{
		cfg:        cfg,
		refLine:    refLine,
		delayEr:    delayEr,
		filter:     filter,
		detect:     detect,
		suppr:      suppressor.New(),
		alignedRef: make([]float32, cfg.BlockSize),
	}, nil
}

// Config returns the canceller's current configuration.
func (e *EchoCanceller) Config() Config { return e.cfg }

// SetConfig applies a live parameter update, per spec §6. It never
// touches FilterLength or structural sizes: those require a new
// EchoCanceller.
func (e *EchoCanceller) SetConfig(delta ConfigDelta) {
	e.cfg = e.cfg.Apply(delta)
	e.filter.SetConfig(nlms.Config{
		StepSize:       e.cfg.StepSize,
		Leakage:        e.cfg.LeakageFactor,
		Regularization: e.cfg.Regularization,
	})
	e.detect.SetConfig(dtd.Config{
		PowerRatioThreshold:  e.cfg.PowerRatioThreshold,
		CorrelationThreshold: e.cfg.CorrelationThreshold,
		HangoverSamples:      e.cfg.HangoverSamples,
	})
}

// Reset clears all adaptive and historical state (filter weights,
// delay line contents, delay estimate, DTD state) back to the values
// New would produce, without reallocating.
func (e *EchoCanceller) Reset() {
	e.refLine.Clear()
	e.delayEr.Reset()
	e.filter.Reset()
	e.detect.Reset()
	e.samplesProcessed = 0
	e.blocksProcessed = 0
}

// ProcessBlock runs the nine-step pipeline of spec §4.6 over one block
// of mic and ref samples (both length cfg.BlockSize) and returns the
// cleaned near-end signal plus this block's diagnostics.
//
// Steps: (1) validate lengths and finiteness, (2) write ref into the
// delay line, (3) update the delay estimate from the reference
// history, (4) read the aligned reference back out of the delay line,
// (5) run the double-talk detector against the aligned reference to
// decide whether adaptation is allowed (forced off for a block with
// non-finite input), (6) run the NLMS filter with that decision to get
// a clean/error signal, (7) apply the residual suppressor, (8) compute
// ERLE, (9) assemble metrics.
func (e *EchoCanceller) ProcessBlock(mic, ref []float32) ([]float32, BlockMetrics) {
	out := make([]float32, len(mic))

	// Step 1: validate shapes and finiteness.
	if len(mic) != e.cfg.BlockSize || len(ref) != e.cfg.BlockSize {
		return out, BlockMetrics{
			DtdState:   e.detect.State(),
			FilterNorm: e.filter.Norm(),
			Err:        fmt.Errorf("%w: mic=%d ref=%d want=%d", ErrBlockSizeMismatch, len(mic), len(ref), e.cfg.BlockSize),
		}
	}

	nonFinite := false
	var badAt []bool // indices whose output is forced to zero
	for i := range mic {
		if !isFinite(mic[i]) || !isFinite(ref[i]) {
			if badAt == nil {
				badAt = make([]bool, len(mic))
			}
			badAt[i] = true
		}
		if !isFinite(mic[i]) {
			mic[i] = 0
			nonFinite = true
		}
		if !isFinite(ref[i]) {
			ref[i] = 0
			nonFinite = true
		}
	}

	// Step 2: push the reference block into the delay line.
	e.refLine.WriteBlock(ref)

	// Step 3: update the bulk delay estimate.
	delay := e.delayEr.Update(mic, e.refLine)

	// Build the aligned reference window used by both the DTD and the
	// residual suppressor, reading it back out of the delay line at the
	// current estimate so both consumers see the same alignment.
	for i := range e.alignedRef {
		offset := uint32(len(mic)-1-i) + delay
		s, _ := e.refLine.ReadClamped(offset)
		e.alignedRef[i] = s
	}

	// Step 5: the double-talk detector decides whether adaptation is
	// allowed; a block with non-finite input never adapts.
	adaptOK := e.detect.Process(mic, e.alignedRef)
	adapt := adaptOK && !nonFinite

	// Step 6: adaptive filtering. The filter always produces an output
	// estimate regardless of gating.
	e.filter.ProcessBlock(mic, e.refLine, delay, adapt, out)

	// Step 7: residual suppression on the cleaned signal.
	e.suppr.Apply(out, e.alignedRef)

	// Samples that were non-finite on input are silent on output.
	for i, bad := range badAt {
		if bad {
			out[i] = 0
		}
	}

	// Step 8: ERLE for this block, clamped to [0, 60] per property 8.
	erle := erleDB(mic, out)

	e.samplesProcessed += uint64(len(mic))
	e.blocksProcessed++

	metrics := BlockMetrics{
		EstimatedDelay: delay,
		DoubleTalk:     !adaptOK,
		DtdState:       e.detect.State(),
		Erle:           erle,
		FilterNorm:     e.filter.Norm(),
	}
	if nonFinite {
		metrics.Err = fmt.Errorf("%w", ErrNonFiniteInput)
	}
	return out, metrics
}

// isFinite reports whether s is neither NaN nor +/-Inf.
func isFinite(s float32) bool {
	f := float64(s)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// erleDB computes 10*log10(power(mic)/power(out)), clamped to [0, 60].
// A near-silent output (no residual) saturates at the upper clamp
// rather than reporting +Inf.
func erleDB(mic, out []float32) float64 {
	var micPower, outPower float64
	for i := range mic {
		m := float64(mic[i])
		o := float64(out[i])
		micPower += m * m
		outPower += o * o
	}
	n := float64(len(mic))
	if n == 0 {
		return 0
	}
	micPower /= n
	outPower /= n

	const floor = 1e-12
	if micPower < floor {
		return 0
	}
	if outPower < floor {
		return 60
	}
	erle := 10 * math.Log10(micPower/outPower)
	if erle < 0 {
		return 0
	}
	if erle > 60 {
		return 60
	}
	return erle
}
