// Package trignotest provides an in-process base station simulator for
// exercising the acquisition client without hardware. It listens on
// ephemeral ports, honors the start and stop triggers, and streams
// deterministic frames at a configurable rate.
package trignotest

import (
	"encoding/binary"
	"math"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const frameSize = 64

// Waveform generates the raw value for a channel slot at frame index n
type Waveform func(channel, n int) float32

// ConstantWave emits the same value on every slot
func ConstantWave(v float32) Waveform {
	return func(_, _ int) float32 { return v }
}

// SineWave emits a per-channel sine at freqHz sampled at rate
func SineWave(freqHz, rate float64) Waveform {
	return func(channel, n int) float32 {
		phase := 2 * math.Pi * freqHz * float64(n) / rate
		return float32(float64(channel+1) * math.Sin(phase))
	}
}

// RampWave emits channel+n/1000 so every frame and slot is identifiable
func RampWave() Waveform {
	return func(channel, n int) float32 {
		return float32(channel) + float32(n)/1000
	}
}

// Simulator is a fake base station bound to ephemeral loopback ports
type Simulator struct {
	cmdLn  net.Listener
	dataLn net.Listener

	wave      Waveform
	frameRate float64

	mu        sync.Mutex
	conns     []net.Conn
	streaming chan struct{} // closed when TRIGGER START arrives
	stopped   chan struct{} // closed when TRIGGER STOP arrives
	quit      chan struct{} // closed on Close

	framesSent atomic.Int64
	closed     atomic.Bool
	wg         sync.WaitGroup
}

// Option configures the simulator
type Option func(*Simulator)

// WithWaveform sets the generated signal, default RampWave
func WithWaveform(w Waveform) Option {
	return func(s *Simulator) { s.wave = w }
}

// WithFrameRate sets frames per second, default 2000
func WithFrameRate(rate float64) Option {
	return func(s *Simulator) { s.frameRate = rate }
}

// New starts a simulator on loopback ephemeral ports
func New(opts ...Option) (*Simulator, error) {
	cmdLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	dataLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		_ = cmdLn.Close()
		return nil, err
	}

	s := &Simulator{
		cmdLn:     cmdLn,
		dataLn:    dataLn,
		wave:      RampWave(),
		frameRate: 2000,
		streaming: make(chan struct{}),
		stopped:   make(chan struct{}),
		quit:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(2)
	go s.serveCommand()
	go s.serveData()
	return s, nil
}

// Host returns the loopback address both listeners share
func (s *Simulator) Host() string {
	host, _, _ := net.SplitHostPort(s.cmdLn.Addr().String())
	return host
}

// CommandPort returns the command listener port
func (s *Simulator) CommandPort() int {
	return s.cmdLn.Addr().(*net.TCPAddr).Port
}

// DataPort returns the data listener port
func (s *Simulator) DataPort() int {
	return s.dataLn.Addr().(*net.TCPAddr).Port
}

// FramesSent returns how many frames have been written to the data socket
func (s *Simulator) FramesSent() int64 {
	return s.framesSent.Load()
}

// StopReceived reports whether a stop trigger arrived
func (s *Simulator) StopReceived() bool {
	select {
	case <-s.stopped:
		return true
	default:
		return false
	}
}

// Close shuts down both listeners and waits for the serving goroutines
func (s *Simulator) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.quit)
	_ = s.cmdLn.Close()
	_ = s.dataLn.Close()
	s.mu.Lock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Simulator) track(conn net.Conn) {
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()
}

// serveCommand accepts one command connection and watches for triggers
func (s *Simulator) serveCommand() {
	defer s.wg.Done()

	conn, err := s.cmdLn.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	s.track(conn)

	buf := make([]byte, 256)
	var received strings.Builder
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		received.Write(buf[:n])

		if strings.Contains(received.String(), "TRIGGER START") {
			s.mu.Lock()
			select {
			case <-s.streaming:
			default:
				close(s.streaming)
			}
			s.mu.Unlock()
		}
		if strings.Contains(received.String(), "TRIGGER STOP") {
			s.mu.Lock()
			select {
			case <-s.stopped:
			default:
				close(s.stopped)
			}
			s.mu.Unlock()
			return
		}
	}
}

// serveData accepts one data connection and streams frames once the start
// trigger has arrived
func (s *Simulator) serveData() {
	defer s.wg.Done()

	conn, err := s.dataLn.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	s.track(conn)

	select {
	case <-s.streaming:
	case <-s.quit:
		return
	}

	interval := time.Duration(float64(time.Second) / s.frameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	frame := make([]byte, frameSize)
	for n := 0; ; n++ {
		select {
		case <-s.stopped:
			return
		case <-s.quit:
			return
		case <-ticker.C:
		}

		for slot := 0; slot < 16; slot++ {
			v := s.wave(slot, n)
			binary.LittleEndian.PutUint32(frame[slot*4:], math.Float32bits(v))
		}
		if _, err := conn.Write(frame); err != nil {
			return
		}
		s.framesSent.Add(1)
	}
}
