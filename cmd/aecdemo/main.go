// Command aecdemo drives the echo canceller core against a real audio
// device pair: one input stream supplies both the near-end microphone
// and the far-end loudspeaker reference as interleaved channels, and
// one output stream plays the cleaned signal back for monitoring.
//
// This is the capture/playback glue spec.md explicitly keeps out of
// the core: device enumeration, stream lifecycle, and the message
// loop that turns the core's control/metrics channels into something
// a terminal user or a dashboard can drive. It follows the same
// Start/Stop stream-pairing shape as the teacher's client/audio.go,
// simplified to one input and one output stream instead of four
// concurrent signal paths.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	aec "github.com/rustyguts/bken-aec"
	"github.com/rustyguts/bken-aec/internal/profile"
)

func main() {
	var (
		profileName  = pflag.StringP("profile", "p", "default", "Tuning profile to load (see profile.List).")
		inputDevice  = pflag.IntP("input-device", "i", -1, "Input device index; -1 uses the system default.")
		outputDevice = pflag.IntP("output-device", "o", -1, "Output device index; -1 uses the system default.")
		duration     = pflag.DurationP("duration", "d", 0, "Stop automatically after this long; 0 runs until interrupted.")
		metricsAddr  = pflag.String("metrics-addr", "", "If set, serve a websocket metrics feed at ws://<addr>/metrics.")
		help         = pflag.Bool("help", false, "Display help text.")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: aecdemo [flags]\n\nFlags:\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		return
	}

	cfg := profile.Load(*profileName).Config()

	core, err := aec.New(cfg)
	if err != nil {
		log.Fatalf("[aecdemo] configuration error: %v", err)
	}
	bp := aec.NewBlockProcessor(core)

	var hub *metricsHub
	if *metricsAddr != "" {
		hub = newMetricsHub()
		go serveMetrics(*metricsAddr, hub)
	}

	eng, err := newAudioEngine(bp, *inputDevice, *outputDevice, cfg)
	if err != nil {
		log.Fatalf("[aecdemo] audio init failed: %v", err)
	}
	if err := eng.Start(); err != nil {
		log.Fatalf("[aecdemo] audio start failed: %v", err)
	}
	bp.Start()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt)

	var timeout <-chan time.Time
	if *duration > 0 {
		timeout = time.After(*duration)
	}

	go drainOutbound(bp, hub)

	select {
	case <-done:
		log.Println("[aecdemo] interrupted")
	case <-timeout:
		log.Println("[aecdemo] duration elapsed")
	}

	bp.Stop()
	eng.Stop()
}

// drainOutbound logs Started/Stopped transitions and forwards Metrics
// events to hub (if any), at the BlockProcessor's own push cadence.
func drainOutbound(bp *aec.BlockProcessor, hub *metricsHub) {
	for evt := range bp.Outbound() {
		switch evt.Kind {
		case aec.EvtStarted:
			log.Println("[aecdemo] processing started")
		case aec.EvtStopped:
			log.Println("[aecdemo] processing stopped")
		case aec.EvtMetrics:
			log.Printf("[aecdemo] delay=%d erle=%.1fdB dtd=%s doubleTalkBlocks=%d errors=%d",
				evt.Metrics.EstimatedDelay, evt.Metrics.MeanErle, evt.Metrics.DtdState,
				evt.Metrics.DoubleTalkBlocks, evt.Metrics.ErrorCount)
			if hub != nil {
				hub.broadcast(evt.Metrics)
			}
		}
	}
}

// metricsHub fans AggregateMetrics snapshots out to every connected
// websocket client, mirroring the broadcast-to-many-connections shape
// of the teacher's server-side ws.Handler (server/internal/ws), scaled
// down to a single fixed message type instead of a full protocol.
type metricsHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newMetricsHub() *metricsHub {
	return &metricsHub{clients: make(map[*websocket.Conn]struct{})}
}

func (h *metricsHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *metricsHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

func (h *metricsHub) broadcast(m aec.AggregateMetrics) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteJSON(m); err != nil {
			log.Printf("[aecdemo] ws write error: %v", err)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// serveMetrics runs a minimal HTTP server exposing ws://addr/metrics.
// It logs and returns if the listener cannot be started; the demo
// keeps running without the metrics feed in that case.
func serveMetrics(addr string, hub *metricsHub) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[aecdemo] ws upgrade failed: %v", err)
			return
		}
		hub.add(conn)
		log.Printf("[aecdemo] ws client connected: %s", r.RemoteAddr)
		// Block until the client disconnects; this handler does not
		// read further messages from it, only keeps the connection
		// registered for broadcast().
		for {
			if _, _, err := conn.NextReader(); err != nil {
				hub.remove(conn)
				return
			}
		}
	})
	log.Printf("[aecdemo] metrics feed listening at ws://%s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("[aecdemo] metrics server stopped: %v", err)
	}
}

// encodeMetrics is used by tests to confirm AggregateMetrics survives a
// JSON round trip without unexported-field surprises.
func encodeMetrics(m aec.AggregateMetrics) ([]byte, error) {
	return json.Marshal(m)
}
