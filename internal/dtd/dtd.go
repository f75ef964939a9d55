// Package dtd implements the double-talk detector (spec component C4):
// a four-state machine with hangover that gates NLMS adaptation using a
// power-ratio test and a windowed correlation test.
//
// The hangover bookkeeping (a countdown reset on the triggering
// condition, decremented once per call otherwise) follows the same
// shape as the teacher's client/internal/vad.VAD and
// client/internal/noisegate.Gate "remaining" counters, generalized from
// a frame counter to a sample counter per spec §4.4's note that H is
// "expressed in blocks for the countdown".
package dtd

import (
	"errors"
	"math"
)

// ErrInvalidWindowSize is a ConfigurationError for a non-positive window.
var ErrInvalidWindowSize = errors.New("dtd: window size must be positive")

// State is one of the four double-talk detector states.
type State int

const (
	Idle State = iota
	SingleTalk
	DoubleTalk
	Hold
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case SingleTalk:
		return "SingleTalk"
	case DoubleTalk:
		return "DoubleTalk"
	case Hold:
		return "Hold"
	default:
		return "Unknown"
	}
}

// crossPowerEps guards the power-ratio denominator against division by
// zero; far smaller than the 1e-6/1e-7 thresholds used for state
// transitions so it never perturbs a real decision.
const crossPowerEps = 1e-12

// smoothing is alpha, the EMA coefficient applied to P_n, P_f, P_nf
// (spec §4.4: "Smoothing alpha = 0.95").
const smoothing = 0.95

// Config holds the live-tunable DTD parameters.
type Config struct {
	PowerRatioThreshold  float64 // theta_P
	CorrelationThreshold float64 // theta_C
	HangoverSamples      int     // H
}

// DefaultConfig returns spec §6's DTD defaults.
func DefaultConfig() Config {
	return Config{
		PowerRatioThreshold:  2.0,
		CorrelationThreshold: 0.6,
		HangoverSamples:      2400,
	}
}

// Detector is a double-talk detector with a fixed correlation window.
type Detector struct {
	cfg   Config
	state State

	hangover int // h, remaining samples

	pn, pf, pnf float64 // smoothed near/far/cross power

	micWin, refWin []float32
	winPos         int
	winFilled      int
}

// New returns a Detector with the given correlation window length in
// samples (N_win; 512 at 48 kHz per spec default).
func New(windowSize int, cfg Config) (*Detector, error) {
	if windowSize <= 0 {
		return nil, ErrInvalidWindowSize
	}
	return &Detector{
		cfg:    cfg,
		state:  Idle,
		micWin: make([]float32, windowSize),
		refWin: make([]float32, windowSize),
	}, nil
}

// SetConfig live-updates the thresholds and hangover length.
func (d *Detector) SetConfig(cfg Config) { d.cfg = cfg }

// Config returns the current tunable configuration.
func (d *Detector) Config() Config { return d.cfg }

// State returns the current DTD state.
func (d *Detector) State() State { return d.state }

// Powers returns the current smoothed near-end, far-end, and cross
// power estimates (diagnostic/metrics use).
func (d *Detector) Powers() (pn, pf, pnf float64) { return d.pn, d.pf, d.pnf }

// Process updates the detector with one block of (mic, alignedRef)
// samples and returns whether NLMS adaptation should proceed
// (adapt? = state not in {DoubleTalk, Hold}).
func (d *Detector) Process(mic, alignedRef []float32) bool {
	n := len(mic)
	if n == 0 {
		return d.state != DoubleTalk && d.state != Hold
	}

	var pnBlock, pfBlock, pnfBlock float64
	for i := 0; i < n; i++ {
		m := float64(mic[i])
		r := float64(alignedRef[i])
		pnBlock += m * m
		pfBlock += r * r
		pnfBlock += m * r
	}
	pnBlock /= float64(n)
	pfBlock /= float64(n)
	pnfBlock /= float64(n)

	d.pn = smoothing*d.pn + (1-smoothing)*pnBlock
	d.pf = smoothing*d.pf + (1-smoothing)*pfBlock
	d.pnf = smoothing*d.pnf + (1-smoothing)*pnfBlock

	d.pushWindow(mic, alignedRef)

	powerTest := d.pn/(d.pf+crossPowerEps) > d.cfg.PowerRatioThreshold
	correlationTest := math.Abs(d.windowedCorrelation()) < d.cfg.CorrelationThreshold
	dt := powerTest || correlationTest

	d.transition(dt, n)

	return d.state != DoubleTalk && d.state != Hold
}

func (d *Detector) pushWindow(mic, ref []float32) {
	w := len(d.micWin)
	for i := range mic {
		d.micWin[d.winPos] = mic[i]
		d.refWin[d.winPos] = ref[i]
		d.winPos = (d.winPos + 1) % w
		if d.winFilled < w {
			d.winFilled++
		}
	}
}

// windowedCorrelation returns the zero-mean Pearson correlation
// coefficient between the buffered mic and reference history. Returns 0
// (maximally "decorrelated", i.e. favors the correlation test firing)
// when the window has not yet accumulated any samples.
func (d *Detector) windowedCorrelation() float64 {
	n := d.winFilled
	if n == 0 {
		return 0
	}

	var sumM, sumR float64
	for i := 0; i < n; i++ {
		sumM += float64(d.micWin[i])
		sumR += float64(d.refWin[i])
	}
	meanM := sumM / float64(n)
	meanR := sumR / float64(n)

	var num, denomM, denomR float64
	for i := 0; i < n; i++ {
		dm := float64(d.micWin[i]) - meanM
		dr := float64(d.refWin[i]) - meanR
		num += dm * dr
		denomM += dm * dm
		denomR += dr * dr
	}
	denom := math.Sqrt(denomM * denomR)
	if denom < 1e-20 {
		return 0
	}
	return num / denom
}

func (d *Detector) transition(dt bool, blockSize int) {
	switch d.state {
	case Idle:
		if d.pf > 1e-6 && dt {
			d.state = DoubleTalk
			d.hangover = d.cfg.HangoverSamples
		} else if d.pf > 1e-6 {
			d.state = SingleTalk
		}
	case SingleTalk:
		if dt {
			d.state = DoubleTalk
			d.hangover = d.cfg.HangoverSamples
		} else if d.pf < 1e-7 {
			d.state = Idle
		}
	case DoubleTalk:
		if !dt {
			d.state = Hold
			d.hangover = d.cfg.HangoverSamples
		}
	case Hold:
		if dt {
			d.state = DoubleTalk
			d.hangover = d.cfg.HangoverSamples
			return
		}
		if d.hangover == 0 {
			if d.pf > 1e-7 {
				d.state = SingleTalk
			} else {
				d.state = Idle
			}
			return
		}
		d.hangover -= blockSize
		if d.hangover < 0 {
			d.hangover = 0
		}
	}
}

// Reset clears all state, returning the detector to Idle with no
// hangover and zeroed power estimates and correlation window.
func (d *Detector) Reset() {
	d.state = Idle
	d.hangover = 0
	d.pn, d.pf, d.pnf = 0, 0, 0
	for i := range d.micWin {
		d.micWin[i] = 0
		d.refWin[i] = 0
	}
	d.winPos = 0
	d.winFilled = 0
}
