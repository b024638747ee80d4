package sessions

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func genLogger() *log.Logger {
	logger := &log.Logger{
		Out:       os.Stdout,
		Formatter: new(log.TextFormatter),
		Level:     log.DebugLevel,
	}
	return logger
}

// fakeTimers records grace timers so tests decide when they fire
type fakeTimers struct {
	m         sync.Mutex
	pending   []func()
	durations []time.Duration
}

func (f *fakeTimers) afterFunc(d time.Duration, fn func()) {
	f.m.Lock()
	defer f.m.Unlock()
	f.pending = append(f.pending, fn)
	f.durations = append(f.durations, d)
}

// fire runs the i'th timer ever armed
func (f *fakeTimers) fire(i int) {
	f.m.Lock()
	fn := f.pending[i]
	f.m.Unlock()
	fn()
}

func (f *fakeTimers) fireAll() {
	f.m.Lock()
	pending := append([]func(){}, f.pending...)
	f.m.Unlock()
	for _, fn := range pending {
		fn()
	}
}

type fakeLink struct {
	closed int32
}

func (l *fakeLink) Close() error {
	atomic.AddInt32(&l.closed, 1)
	return nil
}

func (l *fakeLink) closeCount() int {
	return int(atomic.LoadInt32(&l.closed))
}

type fakeLauncher struct {
	m     sync.Mutex
	names []string
}

func (l *fakeLauncher) LaunchViewer(name string) {
	l.m.Lock()
	defer l.m.Unlock()
	l.names = append(l.names, name)
}

func (l *fakeLauncher) launched() []string {
	l.m.Lock()
	defer l.m.Unlock()
	return append([]string{}, l.names...)
}

type testRegistry struct {
	*Registry
	timers    *fakeTimers
	launcher  *fakeLauncher
	shutdowns int32
}

func (tr *testRegistry) shutdownCount() int {
	return int(atomic.LoadInt32(&tr.shutdowns))
}

func newTestRegistry(t *testing.T, conf Config) *testRegistry {
	tr := &testRegistry{
		timers:   &fakeTimers{},
		launcher: &fakeLauncher{},
	}
	if conf.GracePeriod == 0 {
		conf.GracePeriod = time.Second
	}
	conf.Launcher = tr.launcher
	conf.OnShutdown = func() { atomic.AddInt32(&tr.shutdowns, 1) }
	conf.Logger = genLogger()

	r, err := New(conf)
	require.NoError(t, err)
	r.afterFunc = tr.timers.afterFunc
	tr.Registry = r
	return tr
}

// drain reads n messages from q, failing the test if they do not arrive
func drain(t *testing.T, q *Queue, n int) []string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msgs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		msg, err := q.Next(ctx)
		require.NoError(t, err)
		msgs = append(msgs, string(msg))
	}
	return msgs
}
