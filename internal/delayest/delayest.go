// Package delayest implements the cross-correlation based bulk delay
// tracker (spec component C2) that aligns the reference signal to the
// microphone signal before the NLMS filter sees it.
package delayest

import (
	"errors"
	"math"
)

// ErrInvalidMaxDelay is a ConfigurationError for a non-positive maxDelay.
var ErrInvalidMaxDelay = errors.New("delayest: maxDelay must be positive")

// silenceFloor is the sum-of-squares threshold below which both signals
// are considered near-silent and the estimate is held rather than updated.
const silenceFloor = 1e-12

// smoothing is the EMA coefficient applied to the raw per-block delay
// estimate (alpha = 0.1 per spec).
const smoothing = 0.1

// ReferenceReader is the read side of the far-end delay line; satisfied
// by *delayline.DelayLine. The estimator reads the reference through it
// instead of the raw block alone because correlating out to maxDelay
// samples needs history that can extend before the current block.
type ReferenceReader interface {
	ReadClamped(offset uint32) (sample float32, clamped bool)
}

// Estimator tracks an integer bulk delay (samples) between the
// reference and the microphone using un-normalized cross-correlation,
// smoothed with an exponential moving average.
type Estimator struct {
	maxDelay uint32
	estimate float64 // d̂, smoothed, fractional
	held     bool    // true if the most recent Update held the estimate (near-silence)
}

// New returns an Estimator with the given maximum delay in samples
// (D_max; 480 at 48 kHz per spec default).
func New(maxDelay int) (*Estimator, error) {
	if maxDelay <= 0 {
		return nil, ErrInvalidMaxDelay
	}
	return &Estimator{maxDelay: uint32(maxDelay)}, nil
}

// MaxDelay returns D_max in samples.
func (e *Estimator) MaxDelay() int { return int(e.maxDelay) }

// Held reports whether the most recent Update held the estimate because
// both signals were near-silent.
func (e *Estimator) Held() bool { return e.held }

// Update computes the raw per-block delay estimate k* = argmax_k
// |r(k)|/count(k) for k in [0, maxDelay], where
//
//	r(k) = sum_i mic[i] * ref[i-k]
//
// ref[i-k] is read from refLine at the offset (measured in "samples ago
// from the most recent write") that corresponds to sample i-k of the
// block just written into refLine: offset = (len(mic)-1-i) + k. It then
// folds k* into the smoothed estimate d̂ <- (1-alpha)*d̂ + alpha*k* and
// returns round(d̂). When both mic and the reference window are
// near-silent (summed power < 1e-12) the estimate is held unchanged.
func (e *Estimator) Update(mic []float32, refLine ReferenceReader) uint32 {
	n := len(mic)
	if n == 0 {
		e.held = true
		return uint32(math.Round(e.estimate))
	}

	var micSS, refSS float64
	for i := 0; i < n; i++ {
		m := float64(mic[i])
		micSS += m * m
		rv, _ := refLine.ReadClamped(uint32(n - 1 - i))
		r := float64(rv)
		refSS += r * r
	}
	if micSS+refSS < silenceFloor {
		e.held = true
		return uint32(math.Round(e.estimate))
	}
	e.held = false

	bestK := uint32(0)
	bestScore := -1.0
	for k := uint32(0); k <= e.maxDelay; k++ {
		var r float64
		for i := 0; i < n; i++ {
			offset := uint32(n-1-i) + k
			rv, _ := refLine.ReadClamped(offset)
			r += float64(mic[i]) * float64(rv)
		}
		// count(k) is constant (= n) since refLine always yields a
		// value via ReadClamped; kept explicit to match spec's
		// normalized-by-count formulation.
		score := math.Abs(r) / float64(n)
		if score > bestScore {
			bestScore = score
			bestK = k
		}
	}

	e.estimate = (1-smoothing)*e.estimate + smoothing*float64(bestK)
	return uint32(math.Round(e.estimate))
}

// Reset reseeds the smoothed estimate to zero.
func (e *Estimator) Reset() {
	e.estimate = 0
	e.held = false
}

// EstimateExact returns the unrounded smoothed estimate (diagnostic use).
func (e *Estimator) EstimateExact() float64 { return e.estimate }
