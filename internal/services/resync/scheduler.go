package resync

import (
	"sync"
	"time"

	"github.com/deepgram/chorus/internal/metrics"
	"github.com/deepgram/chorus/pkg/logger"
)

// DefaultDelay gives the backend time to persist a finished turn before the
// snapshot is re-read.
const DefaultDelay = 300 * time.Millisecond

type pending struct {
	timer *time.Timer
	seq   uint64
}

// Scheduler runs a trailing-edge debounced refresh per session id. Repeated
// Schedule calls for a session push the deadline back, so a burst of completed
// turns results in a single fire.
type Scheduler struct {
	mu      sync.Mutex
	delay   time.Duration
	fire    func(sessionID string)
	pending map[string]pending
	seq     uint64
	stopped bool
}

func NewScheduler(delay time.Duration, fire func(sessionID string)) *Scheduler {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Scheduler{
		delay:   delay,
		fire:    fire,
		pending: make(map[string]pending),
	}
}

// Schedule arms (or re-arms) the refresh for sessionID.
func (s *Scheduler) Schedule(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	metrics.ResyncsScheduled.Inc()
	if p, ok := s.pending[sessionID]; ok {
		p.timer.Stop()
		metrics.ResyncsCoalesced.Inc()
		logger.Debug(logger.RESYNC, "Coalescing refresh for session %s", sessionID)
	}

	s.seq++
	seq := s.seq
	s.pending[sessionID] = pending{
		seq: seq,
		timer: time.AfterFunc(s.delay, func() {
			s.run(sessionID, seq)
		}),
	}
}

func (s *Scheduler) run(sessionID string, seq uint64) {
	s.mu.Lock()
	p, ok := s.pending[sessionID]
	// a timer that was stopped too late to prevent its callback is stale
	if !ok || p.seq != seq || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.pending, sessionID)
	s.mu.Unlock()

	logger.Debug(logger.RESYNC, "Refreshing snapshot for session %s", sessionID)
	s.fire(sessionID)
}

// Cancel drops the pending refresh for sessionID and reports whether one existed.
func (s *Scheduler) Cancel(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[sessionID]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.pending, sessionID)
	return true
}

// Pending reports whether a refresh is armed for sessionID.
func (s *Scheduler) Pending(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[sessionID]
	return ok
}

// Stop cancels everything; later Schedule calls are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
}
