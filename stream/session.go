// Package stream routes conditioned samples from the acquisition queue into
// the live view buffers and, when a trial is active, the recording
// accumulator. It also tracks the session identity used to name saved
// trials.
package stream

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session identifies one streaming run. Trial numbering is scoped to the
// session and advances only when a trial is saved successfully, so failed
// saves never leave gaps in the file sequence.
type Session struct {
	mu        sync.Mutex
	id        uuid.UUID
	startTime time.Time
	trial     int
}

// NewSession creates a session with the trial counter at 1
func NewSession() *Session {
	return &Session{
		id:        uuid.New(),
		startTime: time.Now(),
		trial:     1,
	}
}

// ID returns the session identity
func (s *Session) ID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// StartTime returns the session start used to stamp trial file names
func (s *Session) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// Trial returns the number the next saved trial will carry
func (s *Session) Trial() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trial
}

// AdvanceTrial moves to the next trial number after a successful save
func (s *Session) AdvanceTrial() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trial++
}

// Reset begins a fresh session: new identity, start time now and the trial
// counter back at 1. Called when streaming starts so every streaming run
// gets its own timestamp base and file sequence.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = uuid.New()
	s.startTime = time.Now()
	s.trial = 1
}
