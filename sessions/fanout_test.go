package sessions

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initMessage(s *Session) []byte {
	return []byte("init:" + s.Name())
}

func TestPublishFanOut(t *testing.T) {
	r := newTestRegistry(t, Config{InitialMessage: initMessage})
	s := r.CreateOrReplace("report", &fakeLink{})
	q1, q2, q3 := r.Attach(s), r.Attach(s), r.Attach(s)

	assert.Equal(t, 3, r.Publish(s, []byte("m1")))
	assert.Equal(t, 3, r.Publish(s, []byte("m2")))

	for i, q := range []*Queue{q1, q2, q3} {
		assert.Equal(t, []string{"init:report", "m1", "m2"}, drain(t, q, 3), "queue %d", i+1)
		assert.Equal(t, 0, q.Len(), "queue %d should have nothing extra", i+1)
	}
}

func TestPublishWithoutObservers(t *testing.T) {
	r := newTestRegistry(t, Config{})
	s := r.CreateOrReplace("report", &fakeLink{})
	assert.Equal(t, 0, r.Publish(s, []byte("early")))
	assert.Equal(t, 1, s.HistoryLen())
}

func TestDefaultInitialMessage(t *testing.T) {
	r := newTestRegistry(t, Config{})
	s := r.CreateOrReplace("report", &fakeLink{})
	q := r.Attach(s)

	msg := drain(t, q, 1)[0]
	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(msg), &decoded))
	assert.Equal(t, map[string]string{"type": "new_report", "id": s.ID(), "name": "report"}, decoded)
}

func TestLateObserverReplay(t *testing.T) {
	r := newTestRegistry(t, Config{InitialMessage: initMessage})
	s := r.CreateOrReplace("report", &fakeLink{})
	r.Publish(s, []byte("a"))
	r.Publish(s, []byte("b"))

	q := r.Attach(s)
	r.Publish(s, []byte("c"))
	assert.Equal(t, []string{"init:report", "a", "b", "c"}, drain(t, q, 4))
}

func TestHistoryLimit(t *testing.T) {
	r := newTestRegistry(t, Config{InitialMessage: initMessage, HistoryLimit: 2})
	s := r.CreateOrReplace("report", &fakeLink{})
	for _, m := range []string{"a", "b", "c"} {
		r.Publish(s, []byte(m))
	}
	assert.Equal(t, 2, s.HistoryLen())

	q := r.Attach(s)
	assert.Equal(t, []string{"init:report", "b", "c"}, drain(t, q, 3))
}

func TestPublishIsolatesClosedQueue(t *testing.T) {
	r := newTestRegistry(t, Config{InitialMessage: initMessage})
	s := r.CreateOrReplace("report", &fakeLink{})
	q1, q2, q3 := r.Attach(s), r.Attach(s), r.Attach(s)

	// transport gave up on q2 but has not detached it yet
	q2.Close()

	assert.Equal(t, 2, r.Publish(s, []byte("m")))
	assert.Equal(t, []string{"init:report", "m"}, drain(t, q1, 2))
	assert.Equal(t, []string{"init:report", "m"}, drain(t, q3, 2))
}

func TestDetachStopsDelivery(t *testing.T) {
	r := newTestRegistry(t, Config{InitialMessage: initMessage})
	s := r.CreateOrReplace("report", &fakeLink{})
	q1, q2 := r.Attach(s), r.Attach(s)

	r.Detach(s, q1)
	assert.Equal(t, 1, s.ObserverCount())
	assert.True(t, r.IsCurrent(s), "producer still connected")
	assert.Equal(t, 1, r.Publish(s, []byte("m")))
	assert.Equal(t, []string{"init:report", "m"}, drain(t, q2, 2))
}

func TestConcurrentObservers(t *testing.T) {
	r := newTestRegistry(t, Config{InitialMessage: initMessage})
	s := r.CreateOrReplace("report", &fakeLink{})
	s.EndGracePeriod()

	const observers = 20
	const messages = 50

	var wg sync.WaitGroup
	queues := make(chan *Queue, observers)
	for i := 0; i < observers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, q, err := r.AttachObserver("report")
			if err == nil {
				queues <- q
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < messages; i++ {
			r.Publish(s, []byte(fmt.Sprintf("m%d", i)))
		}
	}()
	wg.Wait()
	close(queues)

	expected := []string{"init:report"}
	for i := 0; i < messages; i++ {
		expected = append(expected, fmt.Sprintf("m%d", i))
	}

	count := 0
	for q := range queues {
		count++
		assert.Equal(t, expected, drain(t, q, len(expected)), "every observer sees the whole report in order")
		r.Detach(s, q)
	}
	assert.Equal(t, observers, count)

	r.ProducerDone(s)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, r.shutdownCount())
}
