package recording

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/emgstream/errors"
	"github.com/c360/emgstream/metric"
	"github.com/c360/emgstream/stream"
)

// Metrics holds Prometheus metrics for the recording accumulator
type Metrics struct {
	trialsSaved        prometheus.Counter
	savesFailed        prometheus.Counter
	samplesAccumulated prometheus.Counter
	saveDuration       prometheus.Histogram
}

func newMetrics(registry *metric.Registry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		trialsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emgstream",
			Subsystem: "recording",
			Name:      "trials_saved_total",
			Help:      "Trials persisted successfully",
		}),
		savesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emgstream",
			Subsystem: "recording",
			Name:      "saves_failed_total",
			Help:      "Trial saves that returned an error",
		}),
		samplesAccumulated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emgstream",
			Subsystem: "recording",
			Name:      "samples_accumulated_total",
			Help:      "Samples appended while a trial was active",
		}),
		saveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "emgstream",
			Subsystem: "recording",
			Name:      "save_duration_seconds",
			Help:      "Time to persist a trial to disk",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}

	_ = registry.RegisterCounter("recording", "trials_saved", m.trialsSaved)
	_ = registry.RegisterCounter("recording", "saves_failed", m.savesFailed)
	_ = registry.RegisterCounter("recording", "samples_accumulated", m.samplesAccumulated)
	_ = registry.RegisterHistogram("recording", "save_duration", m.saveDuration)

	return m
}

// Accumulator collects samples per channel while a trial is active and
// persists them on stop. It implements stream.Recorder so the dispatcher
// can feed it unconditionally; samples arriving outside a trial are
// dropped here.
type Accumulator struct {
	channels int
	rate     float64
	labels   []string
	session  *stream.Session
	writer   *Writer
	logger   *slog.Logger

	// StreamingCheck gates trial starts on acquisition being live
	streamingCheck func() bool

	mu           sync.Mutex
	recording    bool
	data         [][]float64
	segmentStart time.Time

	metrics *Metrics
}

// AccumulatorDeps holds construction dependencies for the accumulator
type AccumulatorDeps struct {
	Channels       int
	SampleRate     float64
	Labels         []string
	Session        *stream.Session
	Writer         *Writer
	StreamingCheck func() bool      // optional
	Logger         *slog.Logger     // optional
	Registry       *metric.Registry // optional
}

// NewAccumulator creates an accumulator for the given channel count
func NewAccumulator(deps AccumulatorDeps) (*Accumulator, error) {
	if deps.Channels < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("channel count %d must be positive", deps.Channels),
			"Accumulator", "NewAccumulator", "channel validation")
	}
	if deps.SampleRate <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("sample rate %v must be positive", deps.SampleRate),
			"Accumulator", "NewAccumulator", "rate validation")
	}
	if deps.Session == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil session"),
			"Accumulator", "NewAccumulator", "session validation")
	}
	if deps.Writer == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil writer"),
			"Accumulator", "NewAccumulator", "writer validation")
	}
	if len(deps.Labels) != deps.Channels {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%d labels for %d channels", len(deps.Labels), deps.Channels),
			"Accumulator", "NewAccumulator", "label validation")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "recording")
	}

	return &Accumulator{
		channels:       deps.Channels,
		rate:           deps.SampleRate,
		labels:         deps.Labels,
		session:        deps.Session,
		writer:         deps.Writer,
		streamingCheck: deps.StreamingCheck,
		logger:         logger,
		metrics:        newMetrics(deps.Registry),
	}, nil
}

// Recording reports whether a trial is active
func (a *Accumulator) Recording() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recording
}

// SampleCounts returns the per-channel accumulated sample counts
func (a *Accumulator) SampleCounts() []int {
	a.mu.Lock()
	defer a.mu.Unlock()

	counts := make([]int, a.channels)
	for ch, data := range a.data {
		counts[ch] = len(data)
	}
	return counts
}

// Record appends one sample while a trial is active. Samples outside a
// trial or for unknown channels are dropped. The first accepted sample
// stamps the segment start time. Implements stream.Recorder.
func (a *Accumulator) Record(channel int, value float64, ts time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.recording || channel < 0 || channel >= a.channels {
		return
	}
	if a.segmentStart.IsZero() {
		if ts.IsZero() {
			ts = time.Now()
		}
		a.segmentStart = ts
	}
	a.data[channel] = append(a.data[channel], value)
	if a.metrics != nil {
		a.metrics.samplesAccumulated.Inc()
	}
}

// StartSegment begins a new trial and returns its number. Fails when
// acquisition is not live or a trial is already active.
func (a *Accumulator) StartSegment() (int, error) {
	if a.streamingCheck != nil && !a.streamingCheck() {
		return 0, errors.WrapInvalid(errors.ErrNotStreaming,
			"Accumulator", "StartSegment", "stream check")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.recording {
		return 0, errors.WrapInvalid(errors.ErrAlreadyRecording,
			"Accumulator", "StartSegment", "state check")
	}

	a.data = make([][]float64, a.channels)
	// Stamped when the first sample of the segment arrives, not now
	a.segmentStart = time.Time{}
	a.recording = true

	trial := a.session.Trial()
	a.logger.Info("Trial started", "trial", trial)
	return trial, nil
}

// StopAndSave ends the active trial and persists it. Channels are trimmed
// to the shortest channel's length so every column of the saved matrix has
// the same sample count. The trial number advances only on a successful
// save; an empty or failed trial leaves the counter untouched so the next
// attempt reuses the number.
func (a *Accumulator) StopAndSave() (*SaveResult, error) {
	a.mu.Lock()
	if !a.recording {
		a.mu.Unlock()
		return nil, errors.WrapInvalid(errors.ErrNotRecording,
			"Accumulator", "StopAndSave", "state check")
	}
	// Flip state first so the dispatcher stops appending immediately
	a.recording = false
	data := a.data
	a.data = nil
	segmentStart := a.segmentStart
	a.mu.Unlock()

	trial := a.session.Trial()

	minSamples := 0
	for ch, chData := range data {
		if ch == 0 || len(chData) < minSamples {
			minSamples = len(chData)
		}
	}
	if minSamples == 0 {
		a.logger.Warn("Trial discarded, no data captured", "trial", trial)
		if a.metrics != nil {
			a.metrics.savesFailed.Inc()
		}
		return nil, errors.WrapInvalid(errors.ErrNoData,
			"Accumulator", "StopAndSave", "data check")
	}

	trimmed := make([][]float64, a.channels)
	for ch, chData := range data {
		trimmed[ch] = chData[:minSamples]
	}

	channelNumbers := make([]int, a.channels)
	for ch := range channelNumbers {
		channelNumbers[ch] = ch + 1
	}

	sessionStart := a.session.StartTime()

	start := time.Now()
	result, err := a.writer.WriteTrial(trimmed, Metadata{
		SessionID:        a.session.ID().String(),
		ChannelNumbers:   channelNumbers,
		SampleRate:       a.rate,
		TotalChannels:    a.channels,
		MuscleLabels:     a.labels,
		SessionDate:      sessionStart.Format("2006-01-02"),
		SessionTime:      sessionStart.Format("15:04:05"),
		TrialNumber:      trial,
		SegmentStartUnix: float64(segmentStart.UnixNano()) / 1e9,
	}, sessionStart)
	if err != nil {
		if a.metrics != nil {
			a.metrics.savesFailed.Inc()
		}
		return nil, errors.Wrap(err, "Accumulator", "StopAndSave", "trial persistence")
	}

	a.session.AdvanceTrial()
	if a.metrics != nil {
		a.metrics.trialsSaved.Inc()
		a.metrics.saveDuration.Observe(time.Since(start).Seconds())
	}
	return result, nil
}
