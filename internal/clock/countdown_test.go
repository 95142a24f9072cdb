package clock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCountdownTicksDownAndCompletes(t *testing.T) {
	var mu sync.Mutex
	var ticks []int
	done := make(chan struct{})

	c := Start(500*time.Millisecond, 100*time.Millisecond,
		func(remaining int) {
			mu.Lock()
			ticks = append(ticks, remaining)
			mu.Unlock()
		},
		func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown never completed")
	}
	<-c.Done()

	mu.Lock()
	defer mu.Unlock()
	if len(ticks) < 3 {
		t.Fatalf("got %d ticks, want at least 3", len(ticks))
	}
	for i := 1; i < len(ticks); i++ {
		if ticks[i] >= ticks[i-1] {
			t.Errorf("tick %d: remaining %d did not decrease from %d", i, ticks[i], ticks[i-1])
		}
	}
	if last := ticks[len(ticks)-1]; last < 0 {
		t.Errorf("remaining went negative: %d", last)
	}
}

func TestStopCancelsTickAndCompletion(t *testing.T) {
	var ticked, completed atomic.Bool

	c := Start(200*time.Millisecond, 100*time.Millisecond,
		func(int) { ticked.Store(true) },
		func() { completed.Store(true) })
	c.Stop()
	<-c.Done()

	// Well past the original deadline; neither callback may fire now.
	time.Sleep(400 * time.Millisecond)
	if completed.Load() {
		t.Error("onDone fired after Stop")
	}
	_ = ticked.Load() // a tick racing Stop is fine, completion is not
}

func TestStopIsIdempotent(t *testing.T) {
	c := Start(time.Hour, time.Minute, nil, nil)
	c.Stop()
	c.Stop()
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("goroutine did not exit after Stop")
	}
}

func TestStopAfterCompletionIsSafe(t *testing.T) {
	done := make(chan struct{})
	c := Start(50*time.Millisecond, 50*time.Millisecond, nil, func() { close(done) })
	<-done
	<-c.Done()
	c.Stop()
}
