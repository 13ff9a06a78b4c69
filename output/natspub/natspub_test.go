package natspub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/emgstream/errors"
	"github.com/c360/emgstream/trigno"
)

func TestNewPublisherValidation(t *testing.T) {
	_, err := NewPublisher("", "emg.samples", nil, nil)
	assert.True(t, errors.IsInvalid(err))

	_, err = NewPublisher("nats://localhost:4222", "", nil, nil)
	assert.True(t, errors.IsInvalid(err))

	p, err := NewPublisher("nats://localhost:4222", "emg.samples", nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestPublishBeforeConnect(t *testing.T) {
	p, err := NewPublisher("nats://localhost:4222", "emg.samples", nil, nil)
	require.NoError(t, err)

	err = p.Publish(trigno.Sample{Channel: 0, Value: 0.5, Timestamp: time.Now()})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestStopWithoutConnect(t *testing.T) {
	p, err := NewPublisher("nats://localhost:4222", "emg.samples", nil, nil)
	require.NoError(t, err)
	assert.NoError(t, p.Stop(time.Second))
}

func TestConnectFailure(t *testing.T) {
	// Reserved port with no broker behind it
	p, err := NewPublisher("nats://127.0.0.1:1", "emg.samples", nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = p.Connect(ctx)
	require.Error(t, err)
}
