package aec

import "fmt"

// Config holds the construction-time and live-tunable parameters for
// an EchoCanceller, per spec §6.
type Config struct {
	SampleRate int // operating rate; affects all time-defined constants
	BlockSize  int // samples per processing block (64, 128, 256, or 512)

	FilterLength int // L, NLMS tap count; immutable after construction

	StepSize       float64 // mu, adaptation rate
	Regularization float64 // delta, denominator floor
	LeakageFactor  float64 // lambda, tap decay per update

	PowerRatioThreshold  float64 // theta_P, DTD power trigger
	CorrelationThreshold float64 // theta_C, DTD correlation trigger
	HangoverSamples      int     // DTD hold-off length, in samples

	WindowSize int // DTD correlation window, in samples
	MaxDelay   int // D_max, C2 upper bound, in samples

	// MetricsInterval is the cadence (in samples) at which the
	// BlockProcessor pushes an aggregate Metrics snapshot, per spec §6.
	MetricsInterval int

	// MetricsQueueCapacity bounds the BlockProcessor's outbound metrics
	// ring (fixed at construction per spec §5).
	MetricsQueueCapacity int

	// ControlQueueCapacity bounds the BlockProcessor's inbound control
	// channel (fixed at construction per spec §5).
	ControlQueueCapacity int
}

// DefaultConfig returns spec §6's configuration defaults.
func DefaultConfig() Config {
	return Config{
		SampleRate: 48000,
		BlockSize:  128,

		FilterLength: 512,

		StepSize:       0.1,
		Regularization: 1e-6,
		LeakageFactor:  0.99999,

		PowerRatioThreshold:  2.0,
		CorrelationThreshold: 0.6,
		HangoverSamples:      2400,

		WindowSize: 512,
		MaxDelay:   480,

		MetricsInterval:      4800,
		MetricsQueueCapacity: 16,
		ControlQueueCapacity: 16,
	}
}

// supportedBlockSizes are the block sizes spec §6 allows at
// construction (64, 128, 256, 512).
var supportedBlockSizes = map[int]bool{64: true, 128: true, 256: true, 512: true}

// Validate checks the construction-time invariants spec §7 assigns to
// ConfigurationError: a positive sample rate, a supported block size,
// and a filter length that fits the delay line the config implies.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sampleRate must be positive, got %d", ErrConfiguration, c.SampleRate)
	}
	if !supportedBlockSizes[c.BlockSize] {
		return fmt.Errorf("%w: unsupported blockSize %d (want one of 64,128,256,512)", ErrConfiguration, c.BlockSize)
	}
	if c.FilterLength <= 0 {
		return fmt.Errorf("%w: filterLength must be positive, got %d", ErrConfiguration, c.FilterLength)
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("%w: maxDelay must be non-negative, got %d", ErrConfiguration, c.MaxDelay)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("%w: windowSize must be positive, got %d", ErrConfiguration, c.WindowSize)
	}
	if c.HangoverSamples < 0 {
		return fmt.Errorf("%w: hangoverSamples must be non-negative, got %d", ErrConfiguration, c.HangoverSamples)
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("%w: metricsInterval must be positive, got %d", ErrConfiguration, c.MetricsInterval)
	}
	return nil
}

// delayLineCapacity is the minimum DelayLine capacity the spec's C1
// invariant requires. The NLMS inner loop reads as far back as
// (blockSize-1) + maxDelay + (filterLength-1) samples from the write
// head, so the three terms must be summed, not paired off against each
// other (the teacher's own aec.go sizes its ring the same way:
// frameSize + delay + taps).
func (c Config) delayLineCapacity() int {
	return c.BlockSize + c.MaxDelay + c.FilterLength
}

// ConfigDelta is a partial live update to a running EchoCanceller, per
// spec §6's SetConfig. Nil fields are left unchanged. FilterLength is
// deliberately absent: it is immutable after construction.
type ConfigDelta struct {
	StepSize             *float64
	Leakage              *float64
	Regularization       *float64
	PowerRatioThreshold  *float64
	CorrelationThreshold *float64
	HangoverSamples      *int
}

// Apply merges non-nil fields of d into c and returns the result.
func (c Config) Apply(d ConfigDelta) Config {
	if d.StepSize != nil {
		c.StepSize = *d.StepSize
	}
	if d.Leakage != nil {
		c.LeakageFactor = *d.Leakage
	}
	if d.Regularization != nil {
		c.Regularization = *d.Regularization
	}
	if d.PowerRatioThreshold != nil {
		c.PowerRatioThreshold = *d.PowerRatioThreshold
	}
	if d.CorrelationThreshold != nil {
		c.CorrelationThreshold = *d.CorrelationThreshold
	}
	if d.HangoverSamples != nil {
		c.HangoverSamples = *d.HangoverSamples
	}
	return c
}
