package sessions

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/sirupsen/logrus"
	nullLog "github.com/sirupsen/logrus/hooks/test"
	"github.com/taskcluster/reportproxy/util"
	"github.com/taskcluster/slugid-go/slugid"
)

// ViewerLauncher opens a viewer for a newly created session.  LaunchViewer is
// called synchronously while handling the producer connection, so
// implementations that block should do their work in a goroutine.
type ViewerLauncher interface {
	LaunchViewer(name string)
}

// Config contains the run time parameters for the registry
type Config struct {
	// GracePeriod is how long a new session survives without observers.
	GracePeriod time.Duration

	// Launcher is invoked once for every name that had no live session.  May
	// be nil.
	Launcher ViewerLauncher

	// OnShutdown is called once, when the registry becomes empty or Shutdown
	// is called.  May be nil.
	OnShutdown func()

	// InitialMessage builds the first message every new observer receives.
	// It is called with the session lock held and must only use Name and ID.
	// Defaults to a JSON new_report message.
	InitialMessage func(*Session) []byte

	// HistoryLimit caps the number of published messages replayed to late
	// observers.  Zero keeps everything.
	HistoryLimit int

	// Logger is used to log registry events.
	Logger *logrus.Logger
}

// Registry maps session names to live sessions.  Lock order is always
// Registry before Session.
type Registry struct {
	m          sync.Mutex
	sessions   map[string]*Session
	generation uint64

	gracePeriod    time.Duration
	launcher       ViewerLauncher
	initialMessage func(*Session) []byte
	historyLimit   int
	logger         *logrus.Logger
	shutdown       *util.Signal

	// afterFunc schedules grace timers; replaced in tests
	afterFunc func(time.Duration, func())
}

type newReportMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewReportMessage is the default initial message: a JSON object announcing
// the session's id and name.
func NewReportMessage(s *Session) []byte {
	data, _ := json.Marshal(newReportMsg{Type: "new_report", ID: s.id, Name: s.name})
	return data
}

// New creates an empty registry.
func New(conf Config) (*Registry, error) {
	if conf.GracePeriod < 0 {
		return nil, ErrInvalidGracePeriod
	}

	r := &Registry{
		sessions:       make(map[string]*Session),
		gracePeriod:    conf.GracePeriod,
		launcher:       conf.Launcher,
		initialMessage: conf.InitialMessage,
		historyLimit:   conf.HistoryLimit,
		logger:         conf.Logger,
		shutdown:       util.NewSignal(conf.OnShutdown),
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}

	if r.initialMessage == nil {
		r.initialMessage = NewReportMessage
	}

	if r.logger == nil {
		logger, _ := nullLog.NewNullLogger()
		r.logger = logger
	}

	return r, nil
}

// CreateOrReplace installs a new session under name, replacing any previous
// one.  The latest producer always wins: a replaced session's producer link is
// closed and the replaced record becomes stale.  The viewer is launched only
// when name had no live session.
func (r *Registry) CreateOrReplace(name string, producer ProducerLink) *Session {
	r.m.Lock()
	prev := r.sessions[name]
	r.generation++
	s := newSession(name, slugid.Nice(), r.generation, producer, r.historyLimit)
	r.sessions[name] = s
	r.m.Unlock()

	if prev != nil {
		r.logf(s, "replacing session %s (generation %d)", prev.id, prev.generation)
		if link := prev.detachProducer(); link != nil {
			if err := link.Close(); err != nil {
				r.logerrorf(prev, "closing superseded producer: %v", err)
			}
		}
	} else {
		r.logf(s, "registered new session")
		if r.launcher != nil {
			r.launcher.LaunchViewer(name)
		}
	}

	r.armGracePeriod(s, r.gracePeriod)
	return s
}

// Lookup returns the live session registered under name.
func (r *Registry) Lookup(name string) (*Session, error) {
	r.m.Lock()
	defer r.m.Unlock()
	s, ok := r.sessions[name]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// IsCurrent returns true if s is exactly the record registered under its name.
func (r *Registry) IsCurrent(s *Session) bool {
	r.m.Lock()
	defer r.m.Unlock()
	return r.sessions[s.name] == s
}

// TryRemove removes s if it is current and eligible for removal, and reports
// whether it did.  It is safe to call speculatively after any state change.
func (r *Registry) TryRemove(s *Session) bool {
	r.m.Lock()
	defer r.m.Unlock()

	if r.sessions[s.name] != s {
		return false
	}

	s.m.Lock()
	removable := s.removable()
	s.m.Unlock()
	if !removable {
		return false
	}

	delete(r.sessions, s.name)
	r.logf(s, "session removed")
	return true
}

// ShutdownIfEmpty requests shutdown if no sessions remain.  Only the first
// request has any effect.
func (r *Registry) ShutdownIfEmpty() {
	r.m.Lock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	r.m.Unlock()

	r.logger.WithField("sessions", names).Debug("stopping if there are no more sessions")
	if len(names) == 0 {
		r.Shutdown()
	}
}

// Shutdown requests shutdown unconditionally.  It is idempotent.
func (r *Registry) Shutdown() {
	if r.shutdown.Fire() {
		r.logger.Info("shutdown requested")
	}
}

// Done returns a channel which is closed once shutdown has been requested.
func (r *Registry) Done() <-chan struct{} {
	return r.shutdown.Done()
}

// ShutdownRequested reports whether shutdown has been requested.
func (r *Registry) ShutdownRequested() bool {
	return r.shutdown.Fired()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.m.Lock()
	defer r.m.Unlock()
	return len(r.sessions)
}

// Names returns the names of all live sessions, sorted.
func (r *Registry) Names() []string {
	r.m.Lock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	r.m.Unlock()
	sort.Strings(names)
	return names
}

// Close tears the registry down: every session is dropped, its producer link
// closed and its observer queues closed.  Close does not request shutdown.
func (r *Registry) Close() {
	r.m.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.m.Unlock()

	for _, s := range sessions {
		s.m.Lock()
		link := s.producer
		s.producerDone = true
		queues := s.queues
		s.queues = mapset.NewThreadUnsafeSet()
		s.m.Unlock()

		if link != nil {
			_ = link.Close()
		}
		for _, q := range queues.ToSlice() {
			q.(*Queue).Close()
		}
		r.logf(s, "session closed")
	}
}

// registry logging utilities
func (r *Registry) logf(s *Session, format string, v ...interface{}) {
	r.logger.WithFields(logrus.Fields{
		"session-name": s.name,
		"session-id":   s.id,
	}).Printf(format, v...)
}

func (r *Registry) logerrorf(s *Session, format string, v ...interface{}) {
	r.logger.WithFields(logrus.Fields{
		"session-name": s.name,
		"session-id":   s.id,
	}).Errorf(format, v...)
}
