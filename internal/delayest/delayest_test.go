package delayest

import (
	"math"
	"testing"

	"github.com/rustyguts/bken-aec/internal/delayline"
)

const testN = 128

func TestNewInvalidMaxDelay(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("New(0): want error")
	}
	if _, err := New(-5); err == nil {
		t.Fatal("New(-5): want error")
	}
}

func TestSilenceHoldsEstimate(t *testing.T) {
	e, _ := New(480)
	line, _ := delayline.New(2048)

	mic := make([]float32, testN)
	ref := make([]float32, testN)
	line.WriteBlock(ref)

	got := e.Update(mic, line)
	if got != 0 {
		t.Errorf("held estimate: want 0, got %d", got)
	}
	if !e.Held() {
		t.Error("expected Held() true for all-silent block")
	}
}

// TestDetectsKnownDelay feeds a reference signal delayed by a known
// amount into the mic path and verifies the estimator converges to it.
func TestDetectsKnownDelay(t *testing.T) {
	const trueDelay = 64
	e, _ := New(480)
	line, _ := delayline.New(4096)

	// Build a long white-noise-like (deterministic PRNG) reference and a
	// mic signal that is the reference delayed by trueDelay samples. The
	// EMA (alpha 0.1, seeded at 0) needs at least 25 blocks to come
	// within 5 samples of trueDelay; 40 blocks brings it to 63.
	totalLen := 40 * testN
	refSignal := make([]float32, totalLen+trueDelay)
	seed := uint32(12345)
	for i := range refSignal {
		seed = seed*1664525 + 1013904223
		refSignal[i] = (float32(seed>>8&0xFFFF)/65535.0)*2 - 1
	}
	// mic[i] is the echo of ref[i]; the reference line is fed trueDelay
	// samples ahead of the corresponding mic block so that, from the
	// delay line's point of view, mic[i] lags its own reference cause by
	// trueDelay samples.
	micSignal := make([]float32, totalLen)
	copy(micSignal, refSignal[:totalLen])

	var lastEstimate uint32
	for blk := 0; blk < totalLen/testN; blk++ {
		refBlock := refSignal[blk*testN+trueDelay : blk*testN+trueDelay+testN]
		micBlock := micSignal[blk*testN : blk*testN+testN]
		line.WriteBlock(refBlock)
		lastEstimate = e.Update(micBlock, line)
	}

	diff := int(lastEstimate) - trueDelay
	if diff < 0 {
		diff = -diff
	}
	if diff > 5 {
		t.Errorf("estimated delay: want ~%d, got %d", trueDelay, lastEstimate)
	}
}

func TestResetReseedsToZero(t *testing.T) {
	e, _ := New(480)
	e.estimate = 123.4
	e.Reset()
	if e.EstimateExact() != 0 {
		t.Errorf("after Reset, estimate: want 0, got %v", e.EstimateExact())
	}
	if math.Round(e.EstimateExact()) != 0 {
		t.Errorf("after Reset, rounded estimate: want 0")
	}
}
