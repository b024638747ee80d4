package sessions

// Attach creates a new observer queue on s.  The queue starts with the
// session's initial message followed by every message published so far, and
// live traffic follows without gaps or duplicates.
func (r *Registry) Attach(s *Session) *Queue {
	s.m.Lock()
	defer s.m.Unlock()
	return r.attachLocked(s)
}

// AttachObserver looks up the session registered under name and attaches a new
// observer queue to it, atomically with respect to removal.
func (r *Registry) AttachObserver(name string) (*Session, *Queue, error) {
	r.m.Lock()
	defer r.m.Unlock()

	s, ok := r.sessions[name]
	if !ok {
		return nil, nil, ErrNotFound
	}

	s.m.Lock()
	defer s.m.Unlock()
	return s, r.attachLocked(s), nil
}

// must be called with s.m held
func (r *Registry) attachLocked(s *Session) *Queue {
	q := newQueue()
	_ = q.push(r.initialMessage(s))
	for i := 0; i < s.history.Length(); i++ {
		_ = q.push(s.history.Get(i).([]byte))
	}
	s.queues.Add(q)
	r.logf(s, "observer attached (%d observers, %d replayed)", s.queues.Cardinality(), s.history.Length())
	return q
}

// Detach removes q from s and closes it, then removes s if that made it
// eligible.
func (r *Registry) Detach(s *Session, q *Queue) {
	s.m.Lock()
	s.queues.Remove(q)
	remaining := s.queues.Cardinality()
	s.m.Unlock()
	q.Close()

	r.logf(s, "observer detached (%d observers)", remaining)
	r.TryRemove(s)
	r.ShutdownIfEmpty()
}

// Publish delivers msg to every queue attached to s and records it for late
// observers.  A queue that refuses the message is skipped without affecting
// the others.  Returns the number of queues msg was delivered to.
func (r *Registry) Publish(s *Session, msg []byte) int {
	s.m.Lock()
	defer s.m.Unlock()

	s.record(msg)
	delivered := 0
	for q := range s.queues.Iter() {
		if err := q.(*Queue).push(msg); err != nil {
			r.logerrorf(s, "dropping message for observer: %v", err)
			continue
		}
		delivered++
	}
	return delivered
}
