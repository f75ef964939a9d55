package aec

import "testing"

func newTestProcessor(t *testing.T) *BlockProcessor {
	t.Helper()
	cfg := testConfig()
	cfg.MetricsInterval = cfg.BlockSize * 2
	ec, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return NewBlockProcessor(ec)
}

func TestStoppedPassesAudioThroughUnchanged(t *testing.T) {
	bp := newTestProcessor(t)
	mic := make([]float32, bp.core.cfg.BlockSize)
	ref := make([]float32, bp.core.cfg.BlockSize)
	for i := range mic {
		mic[i] = float32(i) * 0.01
	}

	out := bp.PushBlock(mic, ref)
	for i := range mic {
		if out[i] != mic[i] {
			t.Fatalf("out[%d]: want passthrough %v, got %v", i, mic[i], out[i])
		}
	}
}

func TestStartSwitchesToProcessingAndEmitsStarted(t *testing.T) {
	bp := newTestProcessor(t)
	bp.Start()

	mic := make([]float32, bp.core.cfg.BlockSize)
	ref := make([]float32, bp.core.cfg.BlockSize)
	bp.PushBlock(mic, ref)

	select {
	case evt := <-bp.Outbound():
		if evt.Kind != EvtStarted {
			t.Fatalf("want EvtStarted, got %v", evt.Kind)
		}
	default:
		t.Fatal("expected a Started event on the outbound channel")
	}
}

func TestStopAfterStartReturnsToPassthrough(t *testing.T) {
	bp := newTestProcessor(t)
	bp.Start()
	mic := make([]float32, bp.core.cfg.BlockSize)
	ref := make([]float32, bp.core.cfg.BlockSize)
	bp.PushBlock(mic, ref)
	<-bp.Outbound() // drain Started

	bp.Stop()
	for i := range mic {
		mic[i] = 0.25
	}
	out := bp.PushBlock(mic, ref)
	for i := range mic {
		if out[i] != mic[i] {
			t.Fatalf("out[%d]: want passthrough after Stop, got %v", i, out[i])
		}
	}
	select {
	case evt := <-bp.Outbound():
		if evt.Kind != EvtStopped {
			t.Fatalf("want EvtStopped, got %v", evt.Kind)
		}
	default:
		t.Fatal("expected a Stopped event on the outbound channel")
	}
}

func TestMetricsPushedAtConfiguredCadence(t *testing.T) {
	bp := newTestProcessor(t)
	bp.Start()
	mic := make([]float32, bp.core.cfg.BlockSize)
	ref := make([]float32, bp.core.cfg.BlockSize)

	bp.PushBlock(mic, ref)
	<-bp.Outbound() // Started

	bp.PushBlock(mic, ref) // samplesSinceMetrics now == MetricsInterval

	select {
	case evt := <-bp.Outbound():
		if evt.Kind != EvtMetrics {
			t.Fatalf("want EvtMetrics, got %v", evt.Kind)
		}
		if evt.Metrics.BlocksProcessed != 2 {
			t.Errorf("want BlocksProcessed 2, got %d", evt.Metrics.BlocksProcessed)
		}
	default:
		t.Fatal("expected a Metrics event once the sample cadence is reached")
	}
}

func TestGetMetricsPushesOnDemand(t *testing.T) {
	bp := newTestProcessor(t)
	bp.Start()
	mic := make([]float32, bp.core.cfg.BlockSize)
	ref := make([]float32, bp.core.cfg.BlockSize)
	bp.PushBlock(mic, ref)
	<-bp.Outbound() // Started

	bp.Control() <- ControlMessage{Kind: CtrlGetMetrics}
	bp.PushBlock(mic, ref)

	var gotMetrics bool
	for {
		select {
		case evt := <-bp.Outbound():
			if evt.Kind == EvtMetrics {
				gotMetrics = true
			}
			continue
		default:
		}
		break
	}
	if !gotMetrics {
		t.Fatal("expected an on-demand Metrics event")
	}
}

func TestResetClearsAccumulators(t *testing.T) {
	bp := newTestProcessor(t)
	bp.Start()
	mic := make([]float32, bp.core.cfg.BlockSize)
	ref := make([]float32, bp.core.cfg.BlockSize)
	bp.PushBlock(mic, ref)
	<-bp.Outbound()

	bp.Control() <- ControlMessage{Kind: CtrlReset}
	bp.PushBlock(mic, ref)

	if bp.blocksSinceFlush != 1 {
		t.Errorf("want blocksSinceFlush 1 after reset + one block, got %d", bp.blocksSinceFlush)
	}
}

func TestHistoryDrainsAccumulatedSnapshots(t *testing.T) {
	bp := newTestProcessor(t)
	bp.Start()
	mic := make([]float32, bp.core.cfg.BlockSize)
	ref := make([]float32, bp.core.cfg.BlockSize)
	bp.PushBlock(mic, ref)
	<-bp.Outbound()
	bp.PushBlock(mic, ref) // triggers one metrics flush

	hist := bp.History()
	if len(hist) != 1 {
		t.Fatalf("want 1 retained snapshot, got %d", len(hist))
	}
	if len(bp.History()) != 0 {
		t.Fatal("History should drain the ring")
	}
}
