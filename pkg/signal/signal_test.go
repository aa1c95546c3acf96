package signal

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNotify_WakesAllSubscribers(t *testing.T) {
	s := New()
	a, cancelA := s.Subscribe()
	defer cancelA()
	b, cancelB := s.Subscribe()
	defer cancelB()

	s.Notify()

	for _, ch := range []<-chan struct{}{a, b} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber not notified")
		}
	}
	assert.Equal(t, uint64(1), s.Count())
}

func TestNotify_Coalesces(t *testing.T) {
	var s Signal
	ch, cancel := s.Subscribe()
	defer cancel()

	s.Notify()
	s.Notify()
	s.Notify()

	<-ch
	select {
	case <-ch:
		t.Fatal("bursts should coalesce into one pending notification")
	default:
	}
	assert.Equal(t, uint64(3), s.Count())
}

func TestCancel_ClosesAndUnsubscribes(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	require.Equal(t, 1, s.Subscribers())

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, s.Subscribers())
	s.Notify()
}

func TestNilSignal(t *testing.T) {
	var s *Signal
	s.Notify()
	assert.Equal(t, uint64(0), s.Count())
	assert.Equal(t, 0, s.Subscribers())
}

func TestSubscriberGoroutine(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()

	var wg sync.WaitGroup
	got := make(chan int, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		n := 0
		for range ch {
			n++
		}
		got <- n
	}()

	s.Notify()
	time.Sleep(10 * time.Millisecond)
	cancel()
	wg.Wait()
	assert.GreaterOrEqual(t, <-got, 1)
}
