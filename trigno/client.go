// Package trigno implements the TCP client for the Delsys Trigno base
// station. The station exposes a command socket for start/stop triggers and
// a data socket that streams fixed 64-byte frames of 16 little-endian
// float32 slots. The client conditions the wired channels through the dsp
// chain and hands samples to the consumer over a bounded drop-oldest queue
// so a slow consumer can never stall acquisition.
package trigno

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/emgstream/dsp"
	"github.com/c360/emgstream/errors"
	"github.com/c360/emgstream/metric"
	"github.com/c360/emgstream/pkg/retry"
)

// Sample is one conditioned EMG sample for a single channel
type Sample struct {
	Channel   int
	Value     float64
	Timestamp time.Time
}

// Config holds the client connection and acquisition settings
type Config struct {
	Host           string
	CommandPort    int
	DataPort       int
	ActiveChannels int
	SampleRate     float64
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	QueueCapacity  int
}

// Metrics holds Prometheus metrics for the acquisition client
type Metrics struct {
	framesReceived prometheus.Counter
	samplesEmitted prometheus.Counter
	samplesDropped prometheus.Counter
	socketErrors   prometheus.Counter
	lastActivity   prometheus.Gauge
}

func newMetrics(registry *metric.Registry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emgstream",
			Subsystem: "trigno",
			Name:      "frames_received_total",
			Help:      "Total data frames received from the base station",
		}),
		samplesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emgstream",
			Subsystem: "trigno",
			Name:      "samples_emitted_total",
			Help:      "Conditioned samples handed to the consumer queue",
		}),
		samplesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emgstream",
			Subsystem: "trigno",
			Name:      "samples_dropped_total",
			Help:      "Samples evicted from a full consumer queue",
		}),
		socketErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emgstream",
			Subsystem: "trigno",
			Name:      "socket_errors_total",
			Help:      "Data socket read errors encountered",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "emgstream",
			Subsystem: "trigno",
			Name:      "last_activity_timestamp",
			Help:      "Unix timestamp of the last received frame",
		}),
	}

	_ = registry.RegisterCounter("trigno", "frames_received", m.framesReceived)
	_ = registry.RegisterCounter("trigno", "samples_emitted", m.samplesEmitted)
	_ = registry.RegisterCounter("trigno", "samples_dropped", m.samplesDropped)
	_ = registry.RegisterCounter("trigno", "socket_errors", m.socketErrors)
	_ = registry.RegisterGauge("trigno", "last_activity", m.lastActivity)

	return m
}

// Client manages the two sockets to the base station and the producer
// goroutine that reads, decodes and conditions frames
type Client struct {
	cfg    Config
	chain  *dsp.Chain
	logger *slog.Logger

	out chan Sample

	retryConfig retry.Config

	// Lifecycle management
	shutdown  chan struct{}
	done      chan struct{}
	running   atomic.Bool
	stopped   atomic.Bool
	closeOut  sync.Once
	startTime time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup

	cmdConn  net.Conn
	dataConn net.Conn

	framesReceived atomic.Int64
	readErrors     atomic.Int64
	lastActivity   atomic.Value // stores time.Time

	metrics *Metrics
}

// NewClient creates an acquisition client. The dsp chain must be sized for
// cfg.ActiveChannels.
func NewClient(cfg Config, chain *dsp.Chain, logger *slog.Logger, registry *metric.Registry) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Client", "NewClient", "host validation")
	}
	if cfg.ActiveChannels < 1 || cfg.ActiveChannels > SlotsPerFrame {
		return nil, errors.WrapInvalid(
			fmt.Errorf("active channels %d outside 1..%d", cfg.ActiveChannels, SlotsPerFrame),
			"Client", "NewClient", "channel validation")
	}
	if chain == nil || chain.Channels() < cfg.ActiveChannels {
		return nil, errors.WrapInvalid(
			fmt.Errorf("dsp chain missing or undersized for %d channels", cfg.ActiveChannels),
			"Client", "NewClient", "chain validation")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Second
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1000
	}

	if logger == nil {
		logger = slog.Default().With("component", "trigno-client", "host", cfg.Host)
	}

	c := &Client{
		cfg:         cfg,
		chain:       chain,
		logger:      logger,
		out:         make(chan Sample, cfg.QueueCapacity),
		retryConfig: retry.Connect(),
		metrics:     newMetrics(registry),
	}
	c.lastActivity.Store(time.Time{})
	return c, nil
}

// Samples returns the queue of conditioned samples. The channel is closed
// after Stop and when the producer exits on a lost connection.
func (c *Client) Samples() <-chan Sample {
	return c.out
}

// Running reports whether the producer loop is active. Goes false after
// Stop and also when the producer exits on its own after losing the data
// socket.
func (c *Client) Running() bool {
	return c.running.Load()
}

// Done returns a channel closed when the producer goroutine exits, whether
// through Stop or a lost connection. Nil before Start.
func (c *Client) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.done
}

// LastActivity returns the arrival time of the most recent frame
func (c *Client) LastActivity() time.Time {
	t, _ := c.lastActivity.Load().(time.Time)
	return t
}

// Stats returns frame and error counts for health reporting
func (c *Client) Stats() (frames, readErrors int64) {
	return c.framesReceived.Load(), c.readErrors.Load()
}

// Start connects both sockets, performs the start handshake and launches
// the producer goroutine. Connection attempts are retried with backoff.
// The context bounds connecting and handshaking only; once started the
// producer runs until Stop or a lost connection.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Client", "Start", "state check")
	}
	if c.stopped.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Client", "Start", "state check")
	}

	if err := retry.Do(ctx, c.retryConfig, func() error {
		return c.connectLocked(ctx)
	}); err != nil {
		c.closeConnsLocked()
		return errors.WrapTransient(err, "Client", "Start", "device connection")
	}

	if err := c.handshakeLocked(); err != nil {
		c.closeConnsLocked()
		return err
	}

	c.shutdown = make(chan struct{})
	c.done = make(chan struct{})
	c.running.Store(true)
	c.startTime = time.Now()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(c.done)
		c.readLoop()
	}()

	c.logger.Info("Acquisition started",
		"host", c.cfg.Host,
		"command_port", c.cfg.CommandPort,
		"data_port", c.cfg.DataPort,
		"channels", c.cfg.ActiveChannels)
	return nil
}

// connectLocked dials the command and data sockets. Caller holds c.mu.
func (c *Client) connectLocked(ctx context.Context) error {
	c.closeConnsLocked()

	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}

	cmdConn, err := dialer.DialContext(ctx, "tcp",
		net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.CommandPort)))
	if err != nil {
		return fmt.Errorf("command socket: %w", err)
	}

	dataConn, err := dialer.DialContext(ctx, "tcp",
		net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.DataPort)))
	if err != nil {
		_ = cmdConn.Close()
		return fmt.Errorf("data socket: %w", err)
	}

	c.cmdConn = cmdConn
	c.dataConn = dataConn
	return nil
}

// handshakeLocked sends the start tokens on the command socket.
// Caller holds c.mu.
func (c *Client) handshakeLocked() error {
	for _, token := range []string{cmdStart, cmdTriggerStart} {
		if _, err := c.cmdConn.Write([]byte(token)); err != nil {
			return errors.WrapTransient(
				fmt.Errorf("%w: send %q: %v", errors.ErrHandshakeFailed, token, err),
				"Client", "Start", "start handshake")
		}
	}
	return nil
}

// Stop sends the stop trigger, closes both sockets and waits for the
// producer to drain. Safe to call more than once; the sample channel is
// closed exactly once after the producer exits.
func (c *Client) Stop(timeout time.Duration) error {
	if !c.stopped.CompareAndSwap(false, true) {
		return nil
	}
	c.running.Store(false)

	c.mu.Lock()
	if c.cmdConn != nil {
		// Best effort; the station stops streaming on socket close anyway
		if _, err := c.cmdConn.Write([]byte(cmdTriggerStop)); err != nil {
			c.logger.Warn("Stop trigger send failed", "error", err)
		}
	}
	if c.shutdown != nil {
		select {
		case <-c.shutdown:
		default:
			close(c.shutdown)
		}
	}
	// Close the data socket to unblock the producer read
	if c.dataConn != nil {
		_ = c.dataConn.Close()
	}
	done := c.done
	c.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(timeout):
			return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
				"Client", "Stop", "graceful shutdown")
		}
	}

	c.mu.Lock()
	c.closeConnsLocked()
	c.mu.Unlock()

	c.closeOut.Do(func() { close(c.out) })
	c.logger.Info("Acquisition stopped", "frames", c.framesReceived.Load())
	return nil
}

func (c *Client) closeConnsLocked() {
	if c.cmdConn != nil {
		_ = c.cmdConn.Close()
		c.cmdConn = nil
	}
	if c.dataConn != nil {
		_ = c.dataConn.Close()
		c.dataConn = nil
	}
}

// readLoop is the producer: it owns the data socket, reads whole frames,
// conditions the wired channels and enqueues samples. On a lost connection
// it clears the running state and closes the sample queue so the consumer
// sees the end of the stream.
func (c *Client) readLoop() {
	var frame [FrameSize]byte
	var slots [SlotsPerFrame]float32

	c.mu.RLock()
	conn := c.dataConn
	c.mu.RUnlock()

	for c.running.Load() {
		select {
		case <-c.shutdown:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		if _, err := io.ReadFull(conn, frame[:]); err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			select {
			case <-c.shutdown:
				return
			default:
			}

			c.readErrors.Add(1)
			if c.metrics != nil {
				c.metrics.socketErrors.Inc()
			}

			// EOF or reset means the station went away
			c.logger.Error("Data socket read failed",
				"error", errors.WrapTransient(
					fmt.Errorf("%w: %v", errors.ErrDisconnected, err),
					"Client", "readLoop", "frame read"))
			c.running.Store(false)
			c.closeOut.Do(func() { close(c.out) })
			return
		}

		now := time.Now()
		c.framesReceived.Add(1)
		c.lastActivity.Store(now)
		if c.metrics != nil {
			c.metrics.framesReceived.Inc()
			c.metrics.lastActivity.Set(float64(now.Unix()))
		}

		if err := decodeFrame(frame[:], &slots); err != nil {
			c.readErrors.Add(1)
			continue
		}

		for ch := 0; ch < c.cfg.ActiveChannels; ch++ {
			c.enqueue(Sample{
				Channel:   ch,
				Value:     c.chain.Process(ch, float64(slots[ch])),
				Timestamp: now,
			})
		}
	}
}

// enqueue hands a sample to the consumer queue. When the queue is full the
// oldest sample is evicted so live data stays fresh.
func (c *Client) enqueue(s Sample) {
	select {
	case c.out <- s:
		if c.metrics != nil {
			c.metrics.samplesEmitted.Inc()
		}
		return
	default:
	}

	select {
	case <-c.out:
		if c.metrics != nil {
			c.metrics.samplesDropped.Inc()
		}
	default:
	}

	select {
	case c.out <- s:
		if c.metrics != nil {
			c.metrics.samplesEmitted.Inc()
		}
	default:
		if c.metrics != nil {
			c.metrics.samplesDropped.Inc()
		}
	}
}
