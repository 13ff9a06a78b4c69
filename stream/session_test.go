package stream

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewSession(t *testing.T) {
	s := NewSession()

	assert.NotEqual(t, uuid.Nil, s.ID())
	assert.False(t, s.StartTime().IsZero())
	assert.Equal(t, 1, s.Trial())
}

func TestAdvanceTrial(t *testing.T) {
	s := NewSession()

	s.AdvanceTrial()
	s.AdvanceTrial()
	assert.Equal(t, 3, s.Trial())
}

func TestSessionsAreDistinct(t *testing.T) {
	assert.NotEqual(t, NewSession().ID(), NewSession().ID())
}

func TestSessionReset(t *testing.T) {
	s := NewSession()
	oldID := s.ID()
	oldStart := s.StartTime()

	s.AdvanceTrial()
	s.AdvanceTrial()
	s.Reset()

	assert.Equal(t, 1, s.Trial())
	assert.NotEqual(t, oldID, s.ID())
	assert.False(t, s.StartTime().Before(oldStart))
}
