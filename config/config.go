// Package config loads and validates the application configuration and the
// muscle-label file used to annotate channels.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/c360/emgstream/errors"
)

// Config represents the complete application configuration
type Config struct {
	Device    DeviceConfig    `json:"device"`
	Filter    FilterConfig    `json:"filter"`
	Buffering BufferConfig    `json:"buffering"`
	Recording RecordingConfig `json:"recording"`
	HTTP      HTTPConfig      `json:"http"`
	Metrics   MetricsConfig   `json:"metrics"`
	NATS      NATSConfig      `json:"nats,omitempty"`
}

// DeviceConfig defines the acquisition device connection settings.
// The Trigno base station presents a command socket and a data socket;
// every data frame carries 16 float32 slots of which only the first
// ActiveChannels carry wired electrodes.
type DeviceConfig struct {
	Host           string        `json:"host"`
	CommandPort    int           `json:"command_port"`
	DataPort       int           `json:"data_port"`
	ActiveChannels int           `json:"active_channels"`
	SamplingRate   float64       `json:"sampling_rate"`
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty"`
	ReadTimeout    time.Duration `json:"read_timeout,omitempty"`
}

// FilterConfig defines the per-channel signal conditioning parameters
type FilterConfig struct {
	HighPassHz float64 `json:"highpass_hz"` // DC-block cutoff
	NotchHz    float64 `json:"notch_hz"`    // mains interference center
	NotchQ     float64 `json:"notch_q"`     // notch quality factor
}

// BufferConfig defines buffering capacities
type BufferConfig struct {
	// LiveCapacity is the per-channel live-view capacity in samples.
	// 6000 samples is 3 seconds of history at the 2 kHz device rate.
	LiveCapacity int `json:"live_capacity"`
	// QueueCapacity is the producer/consumer hand-off queue capacity
	QueueCapacity int `json:"queue_capacity"`
}

// RecordingConfig defines where and how segments are persisted
type RecordingConfig struct {
	Directory  string `json:"directory"`
	LabelsFile string `json:"labels_file,omitempty"`
	WriteEDF   bool   `json:"write_edf,omitempty"`
}

// HTTPConfig defines the control surface listener
type HTTPConfig struct {
	Addr string `json:"addr"`
}

// MetricsConfig defines the Prometheus exposure endpoint
type MetricsConfig struct {
	Port int    `json:"port"`
	Path string `json:"path,omitempty"`
}

// NATSConfig defines the optional sample-batch egress.
// Publishing is disabled unless URL is set.
type NATSConfig struct {
	URL     string `json:"url,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// Default returns the configuration matching the standard lab deployment
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Host:           "127.0.0.1",
			CommandPort:    50040,
			DataPort:       50041,
			ActiveChannels: 4,
			SamplingRate:   2000.0,
			ConnectTimeout: 10 * time.Second,
			ReadTimeout:    time.Second,
		},
		Filter: FilterConfig{
			HighPassHz: 0.5,
			NotchHz:    60.0,
			NotchQ:     30.0,
		},
		Buffering: BufferConfig{
			LiveCapacity:  6000,
			QueueCapacity: 1000,
		},
		Recording: RecordingConfig{
			Directory:  "./recordings",
			LabelsFile: "muscle_labels.yaml",
		},
		HTTP: HTTPConfig{
			Addr: ":5000",
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
	}
}

// Load reads a JSON configuration file, applying defaults for absent fields
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Config", "Load", "read config file")
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "parse config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Device.Host == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "device host is required")
	}
	if err := validatePort(c.Device.CommandPort); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "command port")
	}
	if err := validatePort(c.Device.DataPort); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "data port")
	}
	if c.Device.CommandPort == c.Device.DataPort {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"command and data ports must differ")
	}
	if c.Device.ActiveChannels < 1 || c.Device.ActiveChannels > 16 {
		return errors.WrapInvalid(
			fmt.Errorf("active_channels %d outside 1..16", c.Device.ActiveChannels),
			"Config", "Validate", "channel count")
	}
	if c.Device.SamplingRate <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("sampling_rate %v must be positive", c.Device.SamplingRate),
			"Config", "Validate", "sampling rate")
	}
	if c.Filter.HighPassHz <= 0 || c.Filter.HighPassHz >= c.Device.SamplingRate/2 {
		return errors.WrapInvalid(
			fmt.Errorf("highpass_hz %v outside (0, nyquist)", c.Filter.HighPassHz),
			"Config", "Validate", "highpass cutoff")
	}
	if c.Filter.NotchHz <= 0 || c.Filter.NotchHz >= c.Device.SamplingRate/2 {
		return errors.WrapInvalid(
			fmt.Errorf("notch_hz %v outside (0, nyquist)", c.Filter.NotchHz),
			"Config", "Validate", "notch frequency")
	}
	if c.Filter.NotchQ <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("notch_q %v must be positive", c.Filter.NotchQ),
			"Config", "Validate", "notch quality")
	}
	if c.Buffering.LiveCapacity <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("live_capacity %d must be positive", c.Buffering.LiveCapacity),
			"Config", "Validate", "live capacity")
	}
	if c.Buffering.QueueCapacity <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("queue_capacity %d must be positive", c.Buffering.QueueCapacity),
			"Config", "Validate", "queue capacity")
	}
	if c.Recording.Directory == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"recording directory is required")
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"nats subject required when url is set")
	}
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d outside 1..65535", port)
	}
	return nil
}
