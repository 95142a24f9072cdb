package hub

import (
	"testing"
	"time"
)

func TestSnapshotArrivesFirst(t *testing.T) {
	h := New()
	snap := Event{"type": "snapshot", "value": 1}

	sub := h.Subscribe(snap)
	h.Publish(Event{"type": "tick", "value": 2})

	first := <-sub.C
	if first["type"] != "snapshot" {
		t.Fatalf("first event type = %v, want snapshot", first["type"])
	}
	second := <-sub.C
	if second["type"] != "tick" {
		t.Fatalf("second event type = %v, want tick", second["type"])
	}
}

func TestEventsArriveInPublicationOrder(t *testing.T) {
	h := New()
	sub := h.Subscribe(Event{"type": "snapshot"})
	<-sub.C

	for i := 0; i < 10; i++ {
		h.Publish(Event{"seq": i})
	}
	for i := 0; i < 10; i++ {
		ev := <-sub.C
		if ev["seq"] != i {
			t.Fatalf("event %d has seq %v", i, ev["seq"])
		}
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	h := New()
	sub := h.Subscribe(Event{"type": "snapshot"})

	// never drained; one more publish than the buffer holds
	for i := 0; i <= subscriberBuffer; i++ {
		h.Publish(Event{"seq": i})
	}

	if got := h.SubscriberCount(); got != 0 {
		t.Fatalf("subscriber count = %d, want 0 after overflow", got)
	}

	// drain to the close
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-sub.C:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel never closed after drop")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := New()
	sub := h.Subscribe(Event{"type": "snapshot"})
	<-sub.C

	h.Unsubscribe(sub)
	if _, ok := <-sub.C; ok {
		t.Fatal("channel still open after Unsubscribe")
	}
	if got := h.SubscriberCount(); got != 0 {
		t.Fatalf("subscriber count = %d, want 0", got)
	}

	// publishing to nobody must not panic
	h.Publish(Event{"type": "tick"})
	// double unsubscribe must not close twice
	h.Unsubscribe(sub)
}

func TestDroppedSubscriberDoesNotBlockOthers(t *testing.T) {
	h := New()
	slow := h.Subscribe(Event{"type": "snapshot"})
	fast := h.Subscribe(Event{"type": "snapshot"})
	<-fast.C

	for i := 0; i <= subscriberBuffer; i++ {
		h.Publish(Event{"seq": i})
		<-fast.C
	}
	_ = slow

	if got := h.SubscriberCount(); got != 1 {
		t.Fatalf("subscriber count = %d, want 1 (fast only)", got)
	}
}
