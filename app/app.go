// Package app wires the acquisition client, dispatcher, live buffers and
// recording accumulator into one controllable pipeline. The HTTP surface
// talks to this package only.
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/emgstream/config"
	"github.com/c360/emgstream/dsp"
	"github.com/c360/emgstream/errors"
	"github.com/c360/emgstream/health"
	"github.com/c360/emgstream/metric"
	"github.com/c360/emgstream/recording"
	"github.com/c360/emgstream/stream"
	"github.com/c360/emgstream/trigno"
)

// App owns the pipeline state. Streaming starts and stops rebuild the
// acquisition client and dispatcher; the session, live buffers and
// accumulator live for the whole process.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *metric.Registry
	healthMon *health.Monitor
	publisher stream.Publisher

	session *stream.Session
	labels  []string
	live    *stream.LiveBuffer
	acc     *recording.Accumulator

	mu           sync.Mutex
	client       *trigno.Client
	dispatcher   *stream.Dispatcher
	streaming    bool
	registerOnce bool
}

// Deps holds construction dependencies for the application
type Deps struct {
	Config    *config.Config
	Logger    *slog.Logger     // optional
	Registry  *metric.Registry // optional
	Health    *health.Monitor  // optional
	Publisher stream.Publisher // optional
}

// New builds the long-lived pipeline pieces from configuration
func New(deps Deps) (*App, error) {
	if deps.Config == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "App", "New", "config validation")
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := deps.Config
	labels := config.LoadLabels(cfg.Recording.LabelsFile, cfg.Device.ActiveChannels, logger)

	live, err := stream.NewLiveBuffer(cfg.Device.ActiveChannels, cfg.Buffering.LiveCapacity,
		labels, deps.Registry)
	if err != nil {
		return nil, err
	}

	writer, err := recording.NewWriter(cfg.Recording.Directory, cfg.Recording.WriteEDF,
		logger.With("component", "recording-writer"))
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		logger:    logger,
		registry:  deps.Registry,
		healthMon: deps.Health,
		publisher: deps.Publisher,
		session:   stream.NewSession(),
		labels:    labels,
		live:      live,
	}

	a.acc, err = recording.NewAccumulator(recording.AccumulatorDeps{
		Channels:       cfg.Device.ActiveChannels,
		SampleRate:     cfg.Device.SamplingRate,
		Labels:         labels,
		Session:        a.session,
		Writer:         writer,
		StreamingCheck: a.Streaming,
		Logger:         logger.With("component", "recording"),
		Registry:       deps.Registry,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Pipeline assembled",
		"session_id", a.session.ID(),
		"channels", cfg.Device.ActiveChannels,
		"labels", labels)
	return a, nil
}

// Session returns the session identity
func (a *App) Session() *stream.Session {
	return a.session
}

// Labels returns the channel annotations
func (a *App) Labels() []string {
	return a.live.Labels()
}

// Streaming reports whether acquisition is live
func (a *App) Streaming() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.streaming
}

// Recording reports whether a trial is active
func (a *App) Recording() bool {
	return a.acc.Recording()
}

// StartStreaming connects to the base station and begins routing samples.
// Each start builds a fresh client and dispatcher; filter state is reseeded
// so trials are comparable across runs. The context bounds connecting only;
// the pipeline outlives the caller and runs until StopStreaming.
func (a *App) StartStreaming(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.streaming {
		return errors.WrapInvalid(errors.ErrAlreadyStreaming, "App", "StartStreaming", "state check")
	}

	// Each streaming run is its own session: trial numbering restarts at 1
	// and file names take their timestamp from the new start time. Stale
	// live data from a previous run is discarded with it.
	a.session.Reset()
	a.live.Clear()

	chain, err := dsp.NewChain(a.cfg.Device.ActiveChannels, dsp.ChainConfig{
		SampleRate: a.cfg.Device.SamplingRate,
		HighPassHz: a.cfg.Filter.HighPassHz,
		NotchHz:    a.cfg.Filter.NotchHz,
		NotchQ:     a.cfg.Filter.NotchQ,
	})
	if err != nil {
		return err
	}

	// Metric registration survives restarts, so only the first client and
	// dispatcher register collectors
	registry := a.registry
	if a.registerOnce {
		registry = nil
	}

	client, err := trigno.NewClient(trigno.Config{
		Host:           a.cfg.Device.Host,
		CommandPort:    a.cfg.Device.CommandPort,
		DataPort:       a.cfg.Device.DataPort,
		ActiveChannels: a.cfg.Device.ActiveChannels,
		SampleRate:     a.cfg.Device.SamplingRate,
		ConnectTimeout: a.cfg.Device.ConnectTimeout,
		ReadTimeout:    a.cfg.Device.ReadTimeout,
		QueueCapacity:  a.cfg.Buffering.QueueCapacity,
	}, chain, a.logger.With("component", "trigno-client"), registry)
	if err != nil {
		return err
	}

	if err := client.Start(ctx); err != nil {
		a.updateHealth("trigno-client", false, "connection failed")
		return err
	}

	dispatcher, err := stream.NewDispatcher(stream.DispatcherDeps{
		Samples:   client.Samples(),
		Live:      a.live,
		Recorder:  a.acc,
		Publisher: a.publisher,
		Logger:    a.logger.With("component", "dispatcher"),
		Registry:  registry,
	})
	if err != nil {
		_ = client.Stop(2 * time.Second)
		return err
	}
	if err := dispatcher.Start(); err != nil {
		_ = client.Stop(2 * time.Second)
		return err
	}

	a.client = client
	a.dispatcher = dispatcher
	a.streaming = true
	a.registerOnce = true

	go a.superviseClient(client, dispatcher)

	a.updateHealth("trigno-client", true, "streaming")
	a.updateHealth("dispatcher", true, "running")
	a.logger.Info("Streaming started")
	return nil
}

// superviseClient waits for the producer to exit. A deliberate stop is
// handled by StopStreaming; anything else is a lost connection and the
// pipeline is torn down so state and health reflect it.
func (a *App) superviseClient(client *trigno.Client, dispatcher *stream.Dispatcher) {
	<-client.Done()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != client || !a.streaming {
		return
	}

	a.logger.Error("Acquisition connection lost, stopping stream")

	if a.acc.Recording() {
		if result, err := a.acc.StopAndSave(); err != nil {
			a.logger.Warn("Trial save after connection loss failed", "error", err)
		} else {
			a.logger.Info("Trial saved after connection loss",
				"trial", result.Trial, "samples", result.Samples)
		}
	}

	_ = client.Stop(2 * time.Second)
	_ = dispatcher.Stop(2 * time.Second)

	a.client = nil
	a.dispatcher = nil
	a.streaming = false

	a.updateHealth("trigno-client", false, "device disconnected")
	a.updateHealth("dispatcher", true, "stopped")
}

// StopStreaming tears down acquisition. An active trial is saved first so
// toggling the stream never silently discards recorded data.
func (a *App) StopStreaming(timeout time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.streaming {
		return errors.WrapInvalid(errors.ErrNotStreaming, "App", "StopStreaming", "state check")
	}

	if a.acc.Recording() {
		if result, err := a.acc.StopAndSave(); err != nil {
			a.logger.Warn("Trial save during stream stop failed", "error", err)
		} else {
			a.logger.Info("Trial saved during stream stop",
				"trial", result.Trial, "samples", result.Samples)
		}
	}

	if err := a.client.Stop(timeout); err != nil {
		a.logger.Warn("Client stop incomplete", "error", err)
	}
	// The dispatcher drains the closed queue and exits on its own; Stop
	// only bounds the wait
	if err := a.dispatcher.Stop(timeout); err != nil {
		a.logger.Warn("Dispatcher stop incomplete", "error", err)
	}

	a.client = nil
	a.dispatcher = nil
	a.streaming = false

	a.updateHealth("trigno-client", true, "stopped")
	a.updateHealth("dispatcher", true, "stopped")
	a.logger.Info("Streaming stopped")
	return nil
}

// StartRecording begins a new trial and returns its number
func (a *App) StartRecording() (int, error) {
	return a.acc.StartSegment()
}

// StopRecording ends the active trial and persists it
func (a *App) StopRecording() (*recording.SaveResult, error) {
	return a.acc.StopAndSave()
}

// LiveData returns the buffered live view per channel in channel order,
// with the matching labels
func (a *App) LiveData() (data [][]float64, labels []string) {
	labels = a.live.Labels()
	data = make([][]float64, len(labels))
	for ch := range labels {
		data[ch] = a.live.Channel(ch)
		if data[ch] == nil {
			data[ch] = []float64{}
		}
	}
	return data, labels
}

// Status is the snapshot served by the status endpoint
type Status struct {
	Streaming         bool    `json:"streaming"`
	IsRecording       bool    `json:"is_recording"`
	TrialCounter      int     `json:"trial_counter"`
	SessionID         string  `json:"session_id"`
	SessionStartTime  string  `json:"session_start_time"`
	SystemTime        string  `json:"system_time"`
	BufferSizes       []int   `json:"buffer_sizes"`
	SaveDirectory     string  `json:"save_directory"`
	BufferCapacity    int     `json:"buffer_capacity"`
	SamplingRate      float64 `json:"sampling_rate"`
	ActiveChannels    int     `json:"active_channels"`
	SamplesDispatched int64   `json:"samples_dispatched"`
}

// Status reports the pipeline state
func (a *App) Status() Status {
	a.mu.Lock()
	streaming := a.streaming
	dispatcher := a.dispatcher
	a.mu.Unlock()

	var dispatched int64
	if dispatcher != nil {
		dispatched = dispatcher.Dispatched()
	}

	return Status{
		Streaming:         streaming,
		IsRecording:       a.acc.Recording(),
		TrialCounter:      a.session.Trial(),
		SessionID:         a.session.ID().String(),
		SessionStartTime:  a.session.StartTime().Format(time.RFC3339),
		SystemTime:        time.Now().Format(time.RFC3339),
		BufferSizes:       a.acc.SampleCounts(),
		SaveDirectory:     a.cfg.Recording.Directory,
		BufferCapacity:    a.cfg.Buffering.LiveCapacity,
		SamplingRate:      a.cfg.Device.SamplingRate,
		ActiveChannels:    a.cfg.Device.ActiveChannels,
		SamplesDispatched: dispatched,
	}
}

// Health returns the aggregated component health
func (a *App) Health() health.Status {
	if a.healthMon == nil {
		return health.NewHealthy("emgstream", "health monitor disabled")
	}
	return a.healthMon.AggregateHealth("emgstream")
}

// Shutdown stops streaming if active. Safe to call when idle.
func (a *App) Shutdown(timeout time.Duration) {
	if a.Streaming() {
		if err := a.StopStreaming(timeout); err != nil {
			a.logger.Warn("Shutdown stream stop failed", "error", err)
		}
	}
}

func (a *App) updateHealth(component string, healthy bool, message string) {
	if a.healthMon == nil {
		return
	}
	if healthy {
		a.healthMon.UpdateHealthy(component, message)
	} else {
		a.healthMon.UpdateUnhealthy(component, message)
	}
}
