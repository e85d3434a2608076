package orchestrator

import (
	"testing"
	"time"
)

func receiveEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
		return Event{}
	}
}

func TestHubFanOut(t *testing.T) {
	t.Parallel()

	hub := NewHub(10, nil)
	chA, cancelA := hub.Subscribe("s1", 0)
	defer cancelA()
	chB, cancelB := hub.Subscribe("s1", 0)
	defer cancelB()
	chOther, cancelOther := hub.Subscribe("s2", 0)
	defer cancelOther()

	hub.Publish("s1", EventStatus, StatusPayload{State: "clarifying"})

	evA := receiveEvent(t, chA)
	evB := receiveEvent(t, chB)
	if evA.ID != evB.ID {
		t.Errorf("fan-out delivered different IDs: %d vs %d", evA.ID, evB.ID)
	}
	if evA.SessionID != "s1" || evA.Type != EventStatus {
		t.Errorf("event = %+v", evA)
	}

	select {
	case ev := <-chOther:
		t.Errorf("event leaked to another session: %+v", ev)
	default:
	}
}

func TestHubMonotonicIDs(t *testing.T) {
	t.Parallel()

	hub := NewHub(10, nil)
	ch, cancel := hub.Subscribe("s1", 0)
	defer cancel()

	hub.Publish("s1", EventMessage, MessagePayload{Content: "a"})
	hub.Publish("s1", EventMessage, MessagePayload{Content: "b"})
	hub.Publish("s1", EventMessage, MessagePayload{Content: "c"})

	var last int64
	for i := 0; i < 3; i++ {
		ev := receiveEvent(t, ch)
		if ev.ID <= last {
			t.Fatalf("IDs not monotonic: %d after %d", ev.ID, last)
		}
		last = ev.ID
	}
}

func TestHubReplay(t *testing.T) {
	t.Parallel()

	hub := NewHub(10, nil)

	hub.Publish("s1", EventMessage, MessagePayload{Content: "a"})
	hub.Publish("s1", EventMessage, MessagePayload{Content: "b"})
	hub.Publish("s1", EventMessage, MessagePayload{Content: "c"})

	// Reconnect having seen only the first event.
	ch, cancel := hub.Subscribe("s1", 1)
	defer cancel()

	first := receiveEvent(t, ch)
	second := receiveEvent(t, ch)
	if first.ID != 2 || second.ID != 3 {
		t.Errorf("replayed IDs = %d, %d; want 2, 3", first.ID, second.ID)
	}

	// A fresh subscriber without a resume point gets no replay.
	fresh, cancelFresh := hub.Subscribe("s1", 0)
	defer cancelFresh()
	select {
	case ev := <-fresh:
		t.Errorf("unexpected replay for new subscriber: %+v", ev)
	default:
	}
}

func TestHubQueueEviction(t *testing.T) {
	t.Parallel()

	hub := NewHub(2, nil)
	for i := 0; i < 5; i++ {
		hub.Publish("s1", EventMessage, MessagePayload{Content: "x"})
	}

	// Only the two most recent events survive for replay.
	ch, cancel := hub.Subscribe("s1", 1)
	defer cancel()
	first := receiveEvent(t, ch)
	if first.ID != 4 {
		t.Errorf("first replayed ID = %d, want 4", first.ID)
	}
}

func TestHubDrop(t *testing.T) {
	t.Parallel()

	hub := NewHub(10, nil)
	hub.Publish("s1", EventMessage, MessagePayload{Content: "a"})
	hub.Publish("s1", EventMessage, MessagePayload{Content: "b"})
	hub.Drop("s1")

	// The replay queue is gone: resuming from event 1 yields nothing.
	ch, cancel := hub.Subscribe("s1", 1)
	defer cancel()
	select {
	case ev := <-ch:
		t.Errorf("replayed event from before Drop: %+v", ev)
	default:
	}

	// Live delivery still works for the new subscriber.
	hub.Publish("s1", EventMessage, MessagePayload{Content: "c"})
	ev := receiveEvent(t, ch)
	if ev.ID != 3 {
		t.Errorf("live event ID = %d, want 3", ev.ID)
	}
}
