package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/emgstream/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 50040, cfg.Device.CommandPort)
	assert.Equal(t, 50041, cfg.Device.DataPort)
	assert.Equal(t, 4, cfg.Device.ActiveChannels)
	assert.Equal(t, 2000.0, cfg.Device.SamplingRate)
	assert.Equal(t, 0.5, cfg.Filter.HighPassHz)
	assert.Equal(t, 60.0, cfg.Filter.NotchHz)
	assert.Equal(t, 30.0, cfg.Filter.NotchQ)
	assert.Equal(t, 6000, cfg.Buffering.LiveCapacity)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"device": {"host": "10.0.0.5"},
		"recording": {"directory": "/data/emg"}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.Device.Host)
	assert.Equal(t, "/data/emg", cfg.Recording.Directory)
	// Untouched sections keep defaults
	assert.Equal(t, 50041, cfg.Device.DataPort)
	assert.Equal(t, 60.0, cfg.Filter.NotchHz)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestLoadMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty host", func(c *Config) { c.Device.Host = "" }},
		{"bad command port", func(c *Config) { c.Device.CommandPort = 0 }},
		{"bad data port", func(c *Config) { c.Device.DataPort = 70000 }},
		{"equal ports", func(c *Config) { c.Device.DataPort = c.Device.CommandPort }},
		{"zero channels", func(c *Config) { c.Device.ActiveChannels = 0 }},
		{"too many channels", func(c *Config) { c.Device.ActiveChannels = 17 }},
		{"zero rate", func(c *Config) { c.Device.SamplingRate = 0 }},
		{"highpass above nyquist", func(c *Config) { c.Filter.HighPassHz = 1500 }},
		{"notch above nyquist", func(c *Config) { c.Filter.NotchHz = 1200 }},
		{"zero notch q", func(c *Config) { c.Filter.NotchQ = 0 }},
		{"zero live capacity", func(c *Config) { c.Buffering.LiveCapacity = 0 }},
		{"zero queue capacity", func(c *Config) { c.Buffering.QueueCapacity = 0 }},
		{"empty recording dir", func(c *Config) { c.Recording.Directory = "" }},
		{"nats url without subject", func(c *Config) { c.NATS.URL = "nats://localhost:4222" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}
