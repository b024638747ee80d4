package sessions

import (
	"time"

	"github.com/sirupsen/logrus"
)

// armGracePeriod schedules the end of s's grace period.  The timer is never
// cancelled: if s has been replaced or removed by the time it fires, TryRemove
// finds it stale and nothing happens.
func (r *Registry) armGracePeriod(s *Session, d time.Duration) {
	r.afterFunc(d, func() {
		r.graceExpired(s)
	})
	r.logger.WithFields(logrus.Fields{
		"session-name": s.name,
		"session-id":   s.id,
		"grace-period": d.String(),
	}).Debug("armed grace period")
}

func (r *Registry) graceExpired(s *Session) {
	r.logf(s, "grace period over")
	s.EndGracePeriod()
	r.TryRemove(s)
	r.ShutdownIfEmpty()
}

// ProducerDone records that s's producer has disconnected and removes s if
// that made it eligible.
func (r *Registry) ProducerDone(s *Session) {
	s.m.Lock()
	s.producerDone = true
	s.m.Unlock()

	r.logf(s, "producer disconnected")
	r.TryRemove(s)
	r.ShutdownIfEmpty()
}
