package sessions

import (
	"sync"

	mapset "github.com/deckarep/golang-set"
	"github.com/eapache/queue"
)

// ProducerLink is the upstream connection feeding a Session.  The Registry
// only ever closes it, when a newer producer takes over the same name or the
// Registry itself is closed.
type ProducerLink interface {
	Close() error
}

// Session is the record bridging one named report to its producer and its
// observers.  Sessions are created by Registry.CreateOrReplace and are only
// meaningful while Registry.IsCurrent reports true for them.
type Session struct {
	name       string
	id         string
	generation uint64

	// mutex covers all of the fields below
	m             sync.Mutex
	producer      ProducerLink
	producerDone  bool
	queues        mapset.Set // of *Queue
	inGracePeriod bool

	// published messages, replayed to observers that attach late
	history      *queue.Queue
	historyLimit int
}

func newSession(name, id string, generation uint64, producer ProducerLink, historyLimit int) *Session {
	return &Session{
		name:          name,
		id:            id,
		generation:    generation,
		producer:      producer,
		queues:        mapset.NewThreadUnsafeSet(),
		inGracePeriod: true,
		history:       queue.New(),
		historyLimit:  historyLimit,
	}
}

// Name is the key this session is registered under.
func (s *Session) Name() string {
	return s.name
}

// ID is the opaque identifier minted for this session, distinct from its name.
func (s *Session) ID() string {
	return s.id
}

// Generation increases by one for every session a Registry creates, so a
// replaced session always has a lower generation than its successor.
func (s *Session) Generation() uint64 {
	return s.generation
}

// Producer returns the producer link, or nil if the session has none.
func (s *Session) Producer() ProducerLink {
	s.m.Lock()
	defer s.m.Unlock()
	return s.producer
}

// ProducerTerminated reports whether the producer is absent or has signaled
// termination.
func (s *Session) ProducerTerminated() bool {
	s.m.Lock()
	defer s.m.Unlock()
	return s.producerGone()
}

// InGracePeriod reports whether the session is still protected from removal
// for lack of observers.
func (s *Session) InGracePeriod() bool {
	s.m.Lock()
	defer s.m.Unlock()
	return s.inGracePeriod
}

// EndGracePeriod drops the session's removal protection.  It does not remove
// the session; callers follow it with Registry.TryRemove.
func (s *Session) EndGracePeriod() {
	s.m.Lock()
	defer s.m.Unlock()
	s.inGracePeriod = false
}

// ObserverCount returns the number of attached observer queues.
func (s *Session) ObserverCount() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.queues.Cardinality()
}

// HistoryLen returns the number of published messages kept for replay.
func (s *Session) HistoryLen() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.history.Length()
}

// must be called with s.m held
func (s *Session) producerGone() bool {
	return s.producer == nil || s.producerDone
}

// removable is the eligibility predicate; must be called with s.m held.
func (s *Session) removable() bool {
	return s.queues.Cardinality() == 0 && s.producerGone() && !s.inGracePeriod
}

// must be called with s.m held
func (s *Session) record(msg []byte) {
	s.history.Add(msg)
	if s.historyLimit > 0 {
		for s.history.Length() > s.historyLimit {
			s.history.Remove()
		}
	}
}

// detachProducer marks the producer terminated and returns the link so the
// caller can close it without holding the lock.
func (s *Session) detachProducer() ProducerLink {
	s.m.Lock()
	defer s.m.Unlock()
	s.producerDone = true
	return s.producer
}
