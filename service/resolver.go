package service

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// resolutionScheduler fires a deferred resolution per room after a fixed
// delay. The timer is fire-and-forget: the resolve callback re-checks room
// status under its own lock, so a timer firing against an already-settled
// room is a harmless no-op.
type resolutionScheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	delay   time.Duration
	resolve func(roomID string)
}

func newResolutionScheduler(delay time.Duration, resolve func(roomID string)) *resolutionScheduler {
	return &resolutionScheduler{
		timers:  make(map[string]*time.Timer),
		delay:   delay,
		resolve: resolve,
	}
}

// Schedule queues the room for resolution after the configured delay.
// Scheduling twice for the same room replaces the earlier timer.
func (s *resolutionScheduler) Schedule(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[roomID]; ok {
		t.Stop()
	}

	s.timers[roomID] = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		delete(s.timers, roomID)
		s.mu.Unlock()

		s.resolve(roomID)
	})

	log.WithFields(log.Fields{
		"roomID": roomID,
		"delay":  s.delay,
	}).Debug("Scheduled room resolution")
}

// Cancel drops the pending timer for a room, if any.
func (s *resolutionScheduler) Cancel(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[roomID]; ok {
		t.Stop()
		delete(s.timers, roomID)
	}
}

// Stop drops every pending timer. Used on shutdown; unresolved running
// rooms stay running and can be settled by a later restart pass.
func (s *resolutionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for roomID, t := range s.timers {
		t.Stop()
		delete(s.timers, roomID)
	}
}
