package util

import "sync"

// Signal is a one-shot, idempotent notification.  It is basically a protected
// boolean with functionality to set, check, and wait, plus a callback that
// runs exactly once on the first Fire.
type Signal struct {
	cond     sync.Cond
	fired    bool
	callback func()
	done     chan struct{}
}

// NewSignal creates a Signal that calls f (which may be nil) on the first Fire.
func NewSignal(f func()) *Signal {
	return &Signal{
		cond:     sync.Cond{L: &sync.Mutex{}},
		callback: f,
		done:     make(chan struct{}),
	}
}

// Fire sets this signal.  This can be called multiple times, and only the
// first call will have any effect.  It returns true for that first call.
func (s *Signal) Fire() bool {
	s.cond.L.Lock()
	if s.fired {
		s.cond.L.Unlock()
		return false
	}
	s.fired = true
	close(s.done)
	s.cond.Broadcast()
	cb := s.callback
	s.cond.L.Unlock()

	// run outside the lock so the callback may inspect the signal
	if cb != nil {
		cb()
	}
	return true
}

// Fired checks this signal (without blocking)
func (s *Signal) Fired() bool {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	return s.fired
}

// Wait blocks until the signal fires.
func (s *Signal) Wait() {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	for !s.fired {
		s.cond.Wait()
	}
}

// Done returns a channel that is closed when the signal fires, for use in
// select statements.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}
