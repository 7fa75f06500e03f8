// Package streaming provides in-memory pub/sub for research session
// events, with a per-session ring buffer so late subscribers (SSE
// reconnects carrying Last-Event-ID) can replay what they missed.
package streaming

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultCapacity is the replay ring size used when none is configured.
const DefaultCapacity = 256

// Event is one session event on the wire. Data holds the original
// payload serialized by the publisher.
type Event struct {
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Seq       uint64          `json:"seq"`
}

// Marshal returns the event as JSON for SSE data lines.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Manager fans session events out to subscribers. Slow subscribers are
// dropped rather than blocking the publisher; the ring buffer covers
// the gap on reconnect.
type Manager struct {
	logger   *zap.Logger
	capacity int

	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
}

// NewManager builds a manager whose replay rings hold capacity events
// per session. Zero or negative capacity uses DefaultCapacity.
func NewManager(capacity int, logger *zap.Logger) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:      logger,
		capacity:    capacity,
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
	}
}

// Subscribe registers a channel for one session's events. The caller
// must drain it and call Unsubscribe when done.
func (m *Manager) Subscribe(sessionID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[sessionID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes the subscriber channel. Unknown
// channels are a no-op.
func (m *Manager) Unsubscribe(sessionID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs, ok := m.subscribers[sessionID]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(m.subscribers, sessionID)
	}
}

// Publish assigns the next sequence number, records the event in the
// session's replay ring, and delivers it to every subscriber that can
// take it without blocking.
func (m *Manager) Publish(sessionID, eventType string, payload interface{}) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Warn("unserializable event payload",
			zap.String("session_id", sessionID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		data = nil
	}
	evt := Event{
		SessionID: sessionID,
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rg := m.history[sessionID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[sessionID] = rg
	}
	evt.Seq = rg.nextSeq
	rg.nextSeq++
	rg.push(evt)

	// Fan out under the lock: the sends are non-blocking, and
	// Unsubscribe/Forget close channels under the same lock, so a send
	// can never hit a closed channel.
	for ch := range m.subscribers[sessionID] {
		select {
		case ch <- evt:
		default:
			// slow subscriber, replay will cover it
		}
	}
	return evt
}

// ReplaySince returns the session's events with Seq > since, best
// effort within the ring capacity.
func (m *Manager) ReplaySince(sessionID string, since uint64) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rg := m.history[sessionID]
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Forget drops the session's replay history and detaches any remaining
// subscribers. Called when a session completes and its last consumer
// disconnects.
func (m *Manager) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.history, sessionID)
	for ch := range m.subscribers[sessionID] {
		close(ch)
	}
	delete(m.subscribers, sessionID)
}

// Sessions returns the number of sessions with replay history.
func (m *Manager) Sessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.history)
}

type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

// Seqs start at 1 so a replay from 0 returns the whole ring and a
// client's Last-Event-ID always names an event it actually saw.
func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity), nextSeq: 1} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
