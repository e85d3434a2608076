package orchestrator

import (
	"container/list"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// EventType classifies hub events.
type EventType string

const (
	EventMessage EventType = "message"
	EventStatus  EventType = "status"
	EventPlan    EventType = "plan"
	EventError   EventType = "error"
)

// Event is a single session event delivered to stream subscribers. IDs are
// monotonically increasing across the hub, so a client can resume from the
// last ID it saw.
type Event struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// subscriber is one live stream consumer for a session.
type subscriber struct {
	id int64
	ch chan Event
}

// Hub fans session events out to stream subscribers and buffers a bounded
// per-session replay queue for reconnecting clients. Each session gets its
// own queue so one session's burst cannot evict another session's events.
type Hub struct {
	mu          sync.RWMutex
	queues      map[string]*list.List // sessionID -> recent events
	subscribers map[string]map[int64]*subscriber
	maxQueue    int
	eventID     int64
	subID       int64
	logger      *slog.Logger
}

const (
	defaultHubQueueSize  = 100
	subscriberBufferSize = 32
)

func NewHub(maxQueue int, logger *slog.Logger) *Hub {
	if maxQueue <= 0 {
		maxQueue = defaultHubQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		queues:      make(map[string]*list.List),
		subscribers: make(map[string]map[int64]*subscriber),
		maxQueue:    maxQueue,
		logger:      logger,
	}
}

// Publish assigns the next event ID, queues the event for replay, and fans it
// out to current subscribers. Delivery is non-blocking: a subscriber that
// cannot keep up loses events and recovers them later via replay.
func (h *Hub) Publish(sessionID string, typ EventType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal event payload",
			"session_id", sessionID, "type", typ, "error", err)
		return
	}

	h.mu.Lock()
	h.eventID++
	ev := Event{
		ID:        h.eventID,
		SessionID: sessionID,
		Type:      typ,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}

	q, ok := h.queues[sessionID]
	if !ok {
		q = list.New()
		h.queues[sessionID] = q
	}
	q.PushBack(ev)
	for q.Len() > h.maxQueue {
		q.Remove(q.Front())
	}

	subs := make([]*subscriber, 0, len(h.subscribers[sessionID]))
	for _, sub := range h.subscribers[sessionID] {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("dropping event for slow subscriber",
				"session_id", sessionID, "event_id", ev.ID, "subscriber_id", sub.id)
		}
	}
}

// Subscribe registers a stream consumer for a session. Events with IDs above
// afterEventID that are still in the replay queue are delivered first, in
// order, ahead of any live events. The returned cancel func must be called
// when the consumer disconnects.
func (h *Hub) Subscribe(sessionID string, afterEventID int64) (<-chan Event, func()) {
	h.mu.Lock()
	h.subID++
	sub := &subscriber{
		id: h.subID,
		ch: make(chan Event, subscriberBufferSize),
	}

	// Replay happens under the lock so no live event can interleave ahead of
	// a queued one.
	if q, ok := h.queues[sessionID]; ok && afterEventID > 0 {
		for e := q.Front(); e != nil; e = e.Next() {
			ev := e.Value.(Event)
			if ev.ID <= afterEventID {
				continue
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}

	if _, ok := h.subscribers[sessionID]; !ok {
		h.subscribers[sessionID] = make(map[int64]*subscriber)
	}
	h.subscribers[sessionID][sub.id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.subscribers[sessionID]; ok {
			delete(subs, sub.id)
			if len(subs) == 0 {
				delete(h.subscribers, sessionID)
			}
		}
		h.mu.Unlock()
	}
	return sub.ch, cancel
}

// Drop discards the replay queue and detaches subscribers for a removed
// session.
func (h *Hub) Drop(sessionID string) {
	h.mu.Lock()
	delete(h.queues, sessionID)
	delete(h.subscribers, sessionID)
	h.mu.Unlock()
}
