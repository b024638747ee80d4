package util

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalFiresOnce(t *testing.T) {
	var calls int32
	s := NewSignal(func() { atomic.AddInt32(&calls, 1) })

	assert.False(t, s.Fired())
	assert.True(t, s.Fire(), "first Fire should report true")
	assert.False(t, s.Fire(), "second Fire should report false")
	assert.True(t, s.Fired())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSignalConcurrentFire(t *testing.T) {
	var calls int32
	s := NewSignal(func() { atomic.AddInt32(&calls, 1) })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Fire()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSignalWait(t *testing.T) {
	s := NewSignal(nil)
	waited := make(chan struct{})
	go func() {
		s.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned before Fire")
	case <-time.After(20 * time.Millisecond):
	}

	s.Fire()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Fire")
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("Done channel should be closed")
	}
}

func TestMakeWsURL(t *testing.T) {
	require.Equal(t, "ws://127.0.0.1:80/x", MakeWsURL("http://127.0.0.1:80/x"))
	require.Equal(t, "wss://example.com", MakeWsURL("https://example.com"))
}

func TestTrimName(t *testing.T) {
	require.Equal(t, "report-a", TrimName(" /report-a/ "))
}
