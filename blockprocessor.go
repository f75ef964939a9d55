package aec

// ControlKind identifies the inbound message a BlockProcessor accepts on
// its control channel, per spec §5.
type ControlKind int

const (
	CtrlStart ControlKind = iota
	CtrlStop
	CtrlReset
	CtrlGetMetrics
	CtrlSetConfig
)

// ControlMessage is one inbound control-channel message. Delta is only
// read when Kind is CtrlSetConfig.
type ControlMessage struct {
	Kind  ControlKind
	Delta ConfigDelta
}

// OutboundKind identifies the outbound message a BlockProcessor emits.
type OutboundKind int

const (
	EvtStarted OutboundKind = iota
	EvtStopped
	EvtMetrics
)

// OutboundMessage is one message on the BlockProcessor's outbound
// channel. Metrics is only populated when Kind is EvtMetrics.
type OutboundMessage struct {
	Kind    OutboundKind
	Metrics AggregateMetrics
}

// BlockProcessor is the C7 driver exposed to an external capture layer.
// It wraps an EchoCanceller with the control/metrics message port spec
// §5 describes: control messages are drained at the top of every
// PushBlock call (a block boundary), and metrics are pushed at a fixed
// sample cadence or on demand. It is built around the same
// channel-plus-flag shape the teacher's AudioEngine uses for its
// Start/Stop/enabled surface (see client/audio.go), adapted to a
// message-passing control channel because this core has no goroutine
// of its own: PushBlock runs inline on the caller's real-time thread.
type BlockProcessor struct {
	core *EchoCanceller

	control  chan ControlMessage
	outbound chan OutboundMessage
	history  *metricsRing

	running bool

	samplesSinceMetrics int

	erleSum          float64
	blocksSinceFlush uint64
	doubleTalkBlocks uint64
	errorCount       uint64

	latestDelay uint32
	latestNorm  float64
}

// NewBlockProcessor wraps core in a BlockProcessor. The processor
// starts in the Stopped state: PushBlock passes audio through
// unchanged until a CtrlStart message is drained.
func NewBlockProcessor(core *EchoCanceller) *BlockProcessor {
	ccap := core.cfg.ControlQueueCapacity
	if ccap <= 0 {
		ccap = 1
	}
	mcap := core.cfg.MetricsQueueCapacity
	if mcap <= 0 {
		mcap = 1
	}
	return &BlockProcessor{
		core:     core,
		control:  make(chan ControlMessage, ccap),
		outbound: make(chan OutboundMessage, mcap),
		history:  newMetricsRing(mcap),
	}
}

// Control returns the channel external collaborators send control
// messages on. Sends may block if the queue is full: spec §5 treats
// backpressure on the control channel as acceptable.
func (bp *BlockProcessor) Control() chan<- ControlMessage { return bp.control }

// Outbound returns the channel external collaborators drain Started /
// Stopped / Metrics events from, at their own cadence.
func (bp *BlockProcessor) Outbound() <-chan OutboundMessage { return bp.outbound }

// History returns every AggregateMetrics snapshot still held in the
// retained history ring, oldest first, and empties the ring. The ring
// holds at most MetricsQueueCapacity snapshots; once it is full each
// new snapshot overwrites the oldest one, so only the most recent
// snapshots since the last call are returned. Unlike Outbound, it
// holds only metrics snapshots, not Started/Stopped events.
func (bp *BlockProcessor) History() []AggregateMetrics { return bp.history.Drain() }

// Start enqueues a Start control message, blocking if the control
// queue is full.
func (bp *BlockProcessor) Start() { bp.control <- ControlMessage{Kind: CtrlStart} }

// Stop enqueues a Stop control message, blocking if the control queue
// is full.
func (bp *BlockProcessor) Stop() { bp.control <- ControlMessage{Kind: CtrlStop} }

// PushBlock is the pull interface the external capture layer drives at
// the block rate. It drains pending control messages, then either
// passes mic through unchanged (Stopped) or runs the full pipeline
// (Running), pushing a metrics snapshot when the configured sample
// cadence is reached. It never allocates beyond the output block
// (and, while Stopped, a copy of it) and never blocks.
func (bp *BlockProcessor) PushBlock(mic, ref []float32) []float32 {
	bp.drainControl()

	if !bp.running {
		out := make([]float32, len(mic))
		copy(out, mic)
		return out
	}

	clean, m := bp.core.ProcessBlock(mic, ref)
	bp.accumulate(m)

	bp.samplesSinceMetrics += len(mic)
	if bp.samplesSinceMetrics >= bp.core.cfg.MetricsInterval {
		bp.pushMetrics()
		bp.samplesSinceMetrics = 0
	}
	return clean
}

// drainControl processes every control message currently queued,
// without blocking once the queue is empty.
func (bp *BlockProcessor) drainControl() {
	for {
		select {
		case msg := <-bp.control:
			bp.handle(msg)
		default:
			return
		}
	}
}

func (bp *BlockProcessor) handle(msg ControlMessage) {
	switch msg.Kind {
	case CtrlStart:
		bp.running = true
		bp.sendOutbound(OutboundMessage{Kind: EvtStarted})
	case CtrlStop:
		bp.running = false
		bp.sendOutbound(OutboundMessage{Kind: EvtStopped})
	case CtrlReset:
		bp.core.Reset()
		bp.resetAccumulators()
	case CtrlGetMetrics:
		bp.pushMetrics()
	case CtrlSetConfig:
		bp.core.SetConfig(msg.Delta)
	}
}

func (bp *BlockProcessor) accumulate(m BlockMetrics) {
	bp.erleSum += m.Erle
	bp.blocksSinceFlush++
	if m.DoubleTalk {
		bp.doubleTalkBlocks++
	}
	if m.Err != nil {
		bp.errorCount++
	}
	bp.latestDelay = m.EstimatedDelay
	bp.latestNorm = m.FilterNorm
}

func (bp *BlockProcessor) resetAccumulators() {
	bp.erleSum = 0
	bp.blocksSinceFlush = 0
	bp.doubleTalkBlocks = 0
	bp.errorCount = 0
	bp.samplesSinceMetrics = 0
	bp.latestDelay = 0
	bp.latestNorm = 0
}

// pushMetrics assembles an AggregateMetrics snapshot from the
// accumulators since the last flush and the core's running totals,
// enqueues it (dropping the oldest queued outbound message, whatever
// its kind, if the outbound queue is full, per spec §5's
// overwrite-oldest policy), and
// resets the per-interval accumulators.
func (bp *BlockProcessor) pushMetrics() {
	mean := 0.0
	if bp.blocksSinceFlush > 0 {
		mean = bp.erleSum / float64(bp.blocksSinceFlush)
	}

	snap := AggregateMetrics{
		SamplesProcessed: bp.core.samplesProcessed,
		BlocksProcessed:  bp.core.blocksProcessed,
		EstimatedDelay:   bp.latestDelay,
		DtdState:         bp.core.detect.State(),
		FilterNorm:       bp.latestNorm,
		MeanErle:         mean,
		DoubleTalkBlocks: bp.doubleTalkBlocks,
		ErrorCount:       bp.errorCount,
	}

	bp.history.Push(snap)
	bp.sendOutbound(OutboundMessage{Kind: EvtMetrics, Metrics: snap})

	bp.erleSum = 0
	bp.blocksSinceFlush = 0
	bp.doubleTalkBlocks = 0
	bp.errorCount = 0
}

// sendOutbound enqueues msg, dropping the oldest queued message first
// if the channel is full. PushBlock is the sole producer, so this
// drop-then-send is race-free without a mutex.
func (bp *BlockProcessor) sendOutbound(msg OutboundMessage) {
	select {
	case bp.outbound <- msg:
		return
	default:
	}
	select {
	case <-bp.outbound:
	default:
	}
	select {
	case bp.outbound <- msg:
	default:
	}
}
