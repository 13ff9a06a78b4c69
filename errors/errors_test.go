package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.class.String())
	}
}

func TestWrapPattern(t *testing.T) {
	base := New("socket closed")
	err := Wrap(base, "Client", "Start", "handshake")

	require.Error(t, err)
	assert.Equal(t, "Client.Start: handshake failed: socket closed", err.Error())
	assert.True(t, Is(err, base))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.NoError(t, WrapTransient(nil, "c", "m", "a"))
	assert.NoError(t, WrapInvalid(nil, "c", "m", "a"))
	assert.NoError(t, WrapFatal(nil, "c", "m", "a"))
}

func TestClassificationViaWrappers(t *testing.T) {
	transient := WrapTransient(New("read timeout"), "Client", "readFrame", "socket read")
	invalid := WrapInvalid(ErrNotStreaming, "Accumulator", "StartSegment", "precondition")
	fatal := WrapFatal(ErrMissingConfig, "Config", "Load", "validation")

	assert.True(t, IsTransient(transient))
	assert.False(t, IsInvalid(transient))

	assert.True(t, IsInvalid(invalid))
	assert.False(t, IsTransient(invalid))

	assert.True(t, IsFatal(fatal))
	assert.Equal(t, ErrorFatal, Classify(fatal))
}

func TestSentinelClassification(t *testing.T) {
	// Precondition sentinels classify as invalid even without wrapping
	for _, err := range []error{
		ErrNotStreaming, ErrAlreadyRecording, ErrNotRecording,
		ErrNoData, ErrFrameLength,
	} {
		assert.True(t, IsInvalid(err), "expected %v to be invalid", err)
	}

	assert.True(t, IsTransient(ErrConnectionTimeout))
	assert.True(t, IsFatal(ErrMissingConfig))
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	err := WrapInvalid(ErrAlreadyRecording, "Accumulator", "StartSegment", "state check")

	var ce *ClassifiedError
	require.True(t, As(err, &ce))
	assert.Equal(t, "Accumulator", ce.Component)
	assert.Equal(t, "StartSegment", ce.Operation)
	assert.True(t, Is(err, ErrAlreadyRecording))
}

func TestTransientPatternMatching(t *testing.T) {
	assert.True(t, IsTransient(fmt.Errorf("dial tcp: connection refused")))
	assert.True(t, IsTransient(fmt.Errorf("i/o timeout")))
	assert.False(t, IsTransient(New("frame length mismatch")))
}
