package stream

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/emgstream/errors"
	"github.com/c360/emgstream/metric"
	"github.com/c360/emgstream/trigno"
)

// Recorder receives every sample while a trial is active. Implementations
// decide internally whether a trial is running.
type Recorder interface {
	Record(channel int, value float64, ts time.Time)
}

// Publisher forwards samples to an external sink. Publish must not block
// the dispatch loop for long.
type Publisher interface {
	Publish(s trigno.Sample) error
}

// logSampleEvery throttles the dispatch debug log to one line per this many
// samples
const logSampleEvery = 20000

// Metrics holds Prometheus metrics for the dispatcher
type Metrics struct {
	samplesDispatched prometheus.Counter
	publishErrors     prometheus.Counter
}

func newMetrics(registry *metric.Registry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		samplesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emgstream",
			Subsystem: "dispatcher",
			Name:      "samples_dispatched_total",
			Help:      "Samples routed to the live view and recorder",
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emgstream",
			Subsystem: "dispatcher",
			Name:      "publish_errors_total",
			Help:      "Failed publishes to the external sink",
		}),
	}

	_ = registry.RegisterCounter("dispatcher", "samples_dispatched", m.samplesDispatched)
	_ = registry.RegisterCounter("dispatcher", "publish_errors", m.publishErrors)

	return m
}

// Dispatcher is the single consumer of the acquisition queue. It feeds the
// live buffers on every sample, the recorder on every sample (the recorder
// gates on its own trial state) and the optional publisher.
type Dispatcher struct {
	in        <-chan trigno.Sample
	live      *LiveBuffer
	recorder  Recorder
	publisher Publisher
	logger    *slog.Logger

	shutdown chan struct{}
	done     chan struct{}
	running  atomic.Bool
	mu       sync.Mutex
	wg       sync.WaitGroup

	dispatched atomic.Int64

	metrics *Metrics
}

// DispatcherDeps holds construction dependencies for the dispatcher
type DispatcherDeps struct {
	Samples   <-chan trigno.Sample
	Live      *LiveBuffer
	Recorder  Recorder         // optional
	Publisher Publisher        // optional
	Logger    *slog.Logger     // optional
	Registry  *metric.Registry // optional
}

// NewDispatcher creates a dispatcher for the given sample queue
func NewDispatcher(deps DispatcherDeps) (*Dispatcher, error) {
	if deps.Samples == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil sample queue"),
			"Dispatcher", "NewDispatcher", "queue validation")
	}
	if deps.Live == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil live buffer"),
			"Dispatcher", "NewDispatcher", "live buffer validation")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "dispatcher")
	}

	return &Dispatcher{
		in:        deps.Samples,
		live:      deps.Live,
		recorder:  deps.Recorder,
		publisher: deps.Publisher,
		logger:    logger,
		metrics:   newMetrics(deps.Registry),
	}, nil
}

// Dispatched returns the number of samples routed so far
func (d *Dispatcher) Dispatched() int64 {
	return d.dispatched.Load()
}

// Running reports whether the dispatch loop is active
func (d *Dispatcher) Running() bool {
	return d.running.Load()
}

// Start launches the dispatch loop. The loop runs until Stop or until the
// sample queue is closed by the producer.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Dispatcher", "Start", "state check")
	}

	d.shutdown = make(chan struct{})
	d.done = make(chan struct{})
	d.running.Store(true)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(d.done)
		d.dispatchLoop()
	}()

	return nil
}

// Stop halts the dispatch loop. The loop also exits on its own when the
// sample queue is closed.
func (d *Dispatcher) Stop(timeout time.Duration) error {
	if !d.running.CompareAndSwap(true, false) {
		return nil
	}

	d.mu.Lock()
	select {
	case <-d.shutdown:
	default:
		close(d.shutdown)
	}
	done := d.done
	d.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"Dispatcher", "Stop", "graceful shutdown")
	}
	return nil
}

func (d *Dispatcher) dispatchLoop() {
	for {
		select {
		case <-d.shutdown:
			return
		case s, ok := <-d.in:
			if !ok {
				d.running.Store(false)
				d.logger.Info("Sample queue closed, dispatcher exiting",
					"dispatched", d.dispatched.Load())
				return
			}
			d.dispatch(s)
		}
	}
}

func (d *Dispatcher) dispatch(s trigno.Sample) {
	d.live.Append(s.Channel, s.Value)

	if d.recorder != nil {
		d.recorder.Record(s.Channel, s.Value, s.Timestamp)
	}

	if d.publisher != nil {
		if err := d.publisher.Publish(s); err != nil {
			if d.metrics != nil {
				d.metrics.publishErrors.Inc()
			}
		}
	}

	n := d.dispatched.Add(1)
	if d.metrics != nil {
		d.metrics.samplesDispatched.Inc()
	}
	if n%logSampleEvery == 1 {
		d.logger.Debug("Dispatching samples",
			"dispatched", n,
			"channel", s.Channel,
			"value", s.Value)
	}
}
