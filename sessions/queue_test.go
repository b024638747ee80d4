package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := newQueue()
	for _, m := range []string{"a", "b", "c"} {
		require.NoError(t, q.push([]byte(m)))
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []string{"a", "b", "c"}, drain(t, q, 3))
}

func TestQueueNextBlocks(t *testing.T) {
	q := newQueue()
	got := make(chan string)
	go func() {
		msg, err := q.Next(context.Background())
		if err == nil {
			got <- string(msg)
		}
	}()

	select {
	case <-got:
		t.Fatal("Next returned before anything was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, q.push([]byte("hello")))
	select {
	case msg := <-got:
		assert.Equal(t, "hello", msg)
	case <-time.After(time.Second):
		t.Fatal("Next did not wake up")
	}
}

func TestQueueNextContext(t *testing.T) {
	q := newQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Next(ctx)
	assert.Equal(t, context.DeadlineExceeded, err)
}

func TestQueueCloseDrains(t *testing.T) {
	q := newQueue()
	require.NoError(t, q.push([]byte("last")))
	q.Close()
	q.Close()

	assert.Equal(t, ErrQueueClosed, q.push([]byte("late")))
	assert.Equal(t, []string{"last"}, drain(t, q, 1))

	_, err := q.Next(context.Background())
	assert.Equal(t, ErrQueueClosed, err)
}

func TestQueueCloseWakesReader(t *testing.T) {
	q := newQueue()
	errs := make(chan error)
	go func() {
		_, err := q.Next(context.Background())
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errs:
		assert.Equal(t, ErrQueueClosed, err)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the reader")
	}
}
