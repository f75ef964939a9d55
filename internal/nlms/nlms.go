// Package nlms implements the adaptive FIR echo-path identifier (spec
// component C3): a leaky, power-normalized least-mean-squares filter
// that reads its reference vector directly out of the far-end delay
// line instead of a locally copied slice.
//
// This generalizes the teacher's client/internal/aec.AEC.Process inner
// loop (same convolution-in-reverse-time-order shape, same normalized
// step) with the pieces spec.md adds: a leakage term on every update, a
// noise-gated adaptation condition on the instantaneous far-end power,
// and an externally supplied adapt flag instead of a single global
// enabled bit.
package nlms

import (
	"errors"
	"math"
)

// ErrInvalidTapCount is a ConfigurationError for a non-positive L.
var ErrInvalidTapCount = errors.New("nlms: tap count must be positive")

const (
	// farEndPowerFloor is the instantaneous far-end power (x_n[0]^2)
	// below which adaptation is skipped even if the caller requested it,
	// to avoid mu/delta blowing up when only regularization would carry
	// the update (spec §4.3 step 4).
	farEndPowerFloor = 1e-6

	// powerSmoothing is beta, the smoothing coefficient for the running
	// far-end power estimate p.
	powerSmoothing = 0.05

	// initialPower is the value p is reset to on Reset().
	initialPower = 1e-6
)

// ReferenceReader is the read side of the far-end delay line; satisfied
// by *delayline.DelayLine.
type ReferenceReader interface {
	ReadClamped(offset uint32) (sample float32, clamped bool)
}

// Config holds the live-tunable NLMS parameters. FilterLength (L) is
// immutable after construction per spec §4.6.
type Config struct {
	StepSize       float64 // mu, adaptation rate
	Leakage        float64 // lambda, per-update tap decay
	Regularization float64 // delta, denominator floor
}

// DefaultConfig returns spec §6's NLMS defaults.
func DefaultConfig() Config {
	return Config{
		StepSize:       0.1,
		Leakage:        0.99999,
		Regularization: 1e-6,
	}
}

// Filter is a per-sample leaky NLMS adaptive FIR identifier.
type Filter struct {
	weights []float64 // w[0..L)
	power   float64   // p, smoothed far-end power estimate

	cfg Config
}

// New constructs a Filter with L taps (filterLength). L is fixed for
// the lifetime of the Filter.
func New(tapCount int, cfg Config) (*Filter, error) {
	if tapCount <= 0 {
		return nil, ErrInvalidTapCount
	}
	return &Filter{
		weights: make([]float64, tapCount),
		power:   initialPower,
		cfg:     cfg,
	}, nil
}

// TapCount returns L.
func (f *Filter) TapCount() int { return len(f.weights) }

// SetConfig live-updates step size, leakage, and regularization.
func (f *Filter) SetConfig(cfg Config) { f.cfg = cfg }

// Config returns the current tunable configuration.
func (f *Filter) Config() Config { return f.cfg }

// Weights returns the current tap vector (read-only view; callers must
// not mutate it).
func (f *Filter) Weights() []float64 { return f.weights }

// Norm returns the current L2 norm of the tap vector (diagnostic use,
// e.g. testing the leakage-bound and double-talk-freeze properties).
func (f *Filter) Norm() float64 {
	var sum float64
	for _, w := range f.weights {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// Reset zeroes the tap vector and resets the power estimate.
func (f *Filter) Reset() {
	for i := range f.weights {
		f.weights[i] = 0
	}
	f.power = initialPower
}

// processSample runs one per-sample NLMS step. baseOffset is the
// delay-line offset (samples ago from the most recently written sample)
// of tap 0 for this particular sample: the caller (ProcessBlock)
// computes it as (blockSize-1-n)+alignDelay so that, across the block,
// each sample n sees the reference vector aligned to its own point in
// time rather than all samples in the block sharing one window.
//
//  1. Builds x_n[i] = refLine.ReadClamped(baseOffset+i) for i in [0,L),
//     matching spec §4.3 step 1 with alignDelay folded into baseOffset.
//  2. Computes the filter output y = sum(w[i]*x[i]) and the error
//     e = mic - y.
//  3. If adapt is true AND x[0]^2 > farEndPowerFloor, updates the power
//     estimate and taps with the leaky, normalized rule.
//
// Returns e, the clean (error) sample.
func (f *Filter) processSample(mic float32, refLine ReferenceReader, baseOffset uint32, adapt bool) float32 {
	l := len(f.weights)

	// x[0] is the most heavily weighted, most recent (aligned) tap.
	x0v, _ := refLine.ReadClamped(baseOffset)
	x0 := float64(x0v)

	// Reuse x0 for i=0 to avoid a redundant delay-line read.
	y := f.weights[0] * x0
	for i := 1; i < l; i++ {
		xv, _ := refLine.ReadClamped(baseOffset + uint32(i))
		y += f.weights[i] * float64(xv)
	}

	e := float64(mic) - y

	// Leakage decays every tap on every sample, independent of adapt:
	// property 7 requires the bound ||w(T)|| <= ||w(0)|| * lambda^(T*N)
	// to hold even while adaptation is disabled. The noise-gated
	// gradient term is added on top of the decay only when adaptation
	// is both requested and the reference carries enough power to form
	// a meaningful update.
	if adapt && x0*x0 > farEndPowerFloor {
		f.power = (1-powerSmoothing)*f.power + powerSmoothing*x0*x0
		refPower := f.power*float64(l) + f.cfg.Regularization
		muTilde := f.cfg.StepSize / refPower

		f.weights[0] = f.cfg.Leakage*f.weights[0] + muTilde*e*x0
		for i := 1; i < l; i++ {
			xv, _ := refLine.ReadClamped(baseOffset + uint32(i))
			f.weights[i] = f.cfg.Leakage*f.weights[i] + muTilde*e*float64(xv)
		}
	} else {
		for i := range f.weights {
			f.weights[i] *= f.cfg.Leakage
		}
	}

	return float32(e)
}

// ProcessBlock runs the per-sample NLMS update once per sample of mic,
// writing the resulting error (clean) samples into out. mic and out
// must be the same length; refLine must already hold the current
// block's reference samples as its most recent N writes (the caller,
// EchoCanceller, writes ref into the delay line before calling this).
//
// alignDelay is the bulk delay estimate for this block, held fixed for
// its duration per the spec's block-boundary rule (the delay estimate
// used for block i is the one computed at the start of block i).
func (f *Filter) ProcessBlock(mic []float32, refLine ReferenceReader, alignDelay uint32, adapt bool, out []float32) {
	n := len(mic)
	for sampleIdx, m := range mic {
		baseOffset := uint32(n-1-sampleIdx) + alignDelay
		out[sampleIdx] = f.processSample(m, refLine, baseOffset, adapt)
	}
}
