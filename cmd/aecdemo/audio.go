package main

import (
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"

	aec "github.com/rustyguts/bken-aec"
)

// audioEngine pairs one 2-channel input stream (channel 0 = near-end
// mic, channel 1 = far-end reference loopback) with one 1-channel
// output stream that plays the cleaned signal back for monitoring.
// Modeled on the teacher's client.AudioEngine Start/Stop/captureLoop
// shape (client/audio.go), collapsed to a single capture/process/play
// loop since the demo has no network transport or Opus codec to run
// alongside it.
type audioEngine struct {
	bp  *aec.BlockProcessor
	cfg aec.Config

	inputDevice  int
	outputDevice int

	captureStream *portaudio.Stream
	playStream    *portaudio.Stream

	inBuf  []float32 // interleaved [mic0, ref0, mic1, ref1, ...]
	micBuf []float32
	refBuf []float32
	outBuf []float32

	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func newAudioEngine(bp *aec.BlockProcessor, inputDevice, outputDevice int, cfg aec.Config) (*audioEngine, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	n := cfg.BlockSize
	return &audioEngine{
		bp:           bp,
		cfg:          cfg,
		inputDevice:  inputDevice,
		outputDevice: outputDevice,
		inBuf:        make([]float32, 2*n),
		micBuf:       make([]float32, n),
		refBuf:       make([]float32, n),
		outBuf:       make([]float32, n),
		stopCh:       make(chan struct{}),
	}, nil
}

func resolveDevice(idx int, fallback func() (*portaudio.DeviceInfo, error)) (*portaudio.DeviceInfo, error) {
	if idx < 0 {
		return fallback()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if idx >= len(devices) {
		return nil, fmt.Errorf("device index %d out of range (%d devices)", idx, len(devices))
	}
	return devices[idx], nil
}

// Start opens and starts both streams and launches the processing
// loop goroutine.
func (a *audioEngine) Start() error {
	in, err := resolveDevice(a.inputDevice, portaudio.DefaultInputDevice)
	if err != nil {
		return err
	}
	out, err := resolveDevice(a.outputDevice, portaudio.DefaultOutputDevice)
	if err != nil {
		return err
	}

	captureParams := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   in,
			Channels: 2,
			Latency:  in.DefaultLowInputLatency,
		},
		SampleRate:      float64(a.cfg.SampleRate),
		FramesPerBuffer: a.cfg.BlockSize,
	}
	captureStream, err := portaudio.OpenStream(captureParams, a.inBuf)
	if err != nil {
		return fmt.Errorf("open capture stream: %w", err)
	}

	playParams := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   out,
			Channels: 1,
			Latency:  out.DefaultLowOutputLatency,
		},
		SampleRate:      float64(a.cfg.SampleRate),
		FramesPerBuffer: a.cfg.BlockSize,
	}
	playStream, err := portaudio.OpenStream(playParams, a.outBuf)
	if err != nil {
		captureStream.Close()
		return fmt.Errorf("open playback stream: %w", err)
	}

	if err := captureStream.Start(); err != nil {
		captureStream.Close()
		playStream.Close()
		return err
	}
	if err := playStream.Start(); err != nil {
		captureStream.Stop()
		captureStream.Close()
		playStream.Close()
		return err
	}

	a.captureStream = captureStream
	a.playStream = playStream

	a.wg.Add(1)
	go a.loop()

	log.Printf("[aecdemo] audio started input=%s output=%s", in.Name, out.Name)
	return nil
}

// loop repeatedly reads one interleaved capture block, deinterleaves
// it into mic/ref, runs it through the BlockProcessor, and writes the
// cleaned block to the playback stream. It exits when stopCh closes.
func (a *audioEngine) loop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.stopCh:
			return
		default:
		}

		if err := a.captureStream.Read(); err != nil {
			log.Printf("[aecdemo] capture read error: %v", err)
			return
		}
		for i := 0; i < a.cfg.BlockSize; i++ {
			a.micBuf[i] = a.inBuf[2*i]
			a.refBuf[i] = a.inBuf[2*i+1]
		}

		clean := a.bp.PushBlock(a.micBuf, a.refBuf)
		copy(a.outBuf, clean)

		if err := a.playStream.Write(); err != nil {
			log.Printf("[aecdemo] playback write error: %v", err)
			return
		}
	}
}

// Stop halts both streams, waits for the processing loop to exit, and
// releases PortAudio. Safe to call once after a successful Start.
func (a *audioEngine) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	close(a.stopCh)
	if a.captureStream != nil {
		a.captureStream.Stop()
	}
	if a.playStream != nil {
		a.playStream.Stop()
	}
	a.wg.Wait()

	if a.captureStream != nil {
		a.captureStream.Close()
	}
	if a.playStream != nil {
		a.playStream.Close()
	}
	portaudio.Terminate()
}
