// Package memory provides bounded per-session conversation memory with
// archival eviction.
package memory

import (
	"sync"

	"github.com/planfold/planfold/internal/domain"
)

const (
	// DefaultMaxMessages caps the number of retained messages per session.
	DefaultMaxMessages = 100
	// DefaultMaxBytes caps the serialized size of retained messages (256 KiB).
	DefaultMaxBytes = 256 * 1024
)

// Archiver receives messages evicted from memory. Archival is a side effect
// of eviction, never silent data loss; implementations must not block the
// append path.
type Archiver interface {
	Archive(sessionID string, msgs []domain.Message)
}

// Memory is an append-only, size- and byte-capped message log for one
// session. Writes are serialized through the orchestrator (single writer per
// session); readers may be concurrent.
type Memory struct {
	mu        sync.RWMutex
	sessionID string
	msgs      []domain.Message
	bytes     int
	maxCount  int
	maxBytes  int
	archiver  Archiver
}

// New creates a Memory for the given session. Non-positive caps fall back to
// the defaults. archiver may be nil, in which case evicted messages are
// dropped (used only in tests).
func New(sessionID string, maxCount, maxBytes int, archiver Archiver) *Memory {
	if maxCount <= 0 {
		maxCount = DefaultMaxMessages
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Memory{
		sessionID: sessionID,
		maxCount:  maxCount,
		maxBytes:  maxBytes,
		archiver:  archiver,
	}
}

// Append adds a message, evicting the oldest messages to the archiver when
// either the count cap or the byte cap would be exceeded.
func (m *Memory) Append(msg domain.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.msgs = append(m.msgs, msg)
	m.bytes += msg.Size()

	var evicted []domain.Message
	for len(m.msgs) > 1 && (len(m.msgs) > m.maxCount || m.bytes > m.maxBytes) {
		oldest := m.msgs[0]
		m.msgs = m.msgs[1:]
		m.bytes -= oldest.Size()
		evicted = append(evicted, oldest)
	}

	if len(evicted) > 0 && m.archiver != nil {
		m.archiver.Archive(m.sessionID, evicted)
	}
}

// History returns the most recent limit messages in insertion order. Callers
// must bound their request: limit <= 0 returns nil rather than the whole log,
// so no caller can accidentally leak unbounded memory into a prompt.
func (m *Memory) History(limit int) []domain.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || len(m.msgs) == 0 {
		return nil
	}
	if limit > len(m.msgs) {
		limit = len(m.msgs)
	}
	out := make([]domain.Message, limit)
	copy(out, m.msgs[len(m.msgs)-limit:])
	return out
}

// Clear archives the remaining messages and empties the log.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.msgs) > 0 && m.archiver != nil {
		m.archiver.Archive(m.sessionID, m.msgs)
	}
	m.msgs = nil
	m.bytes = 0
}

// Len returns the number of retained messages.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.msgs)
}

// Size returns the serialized size of retained messages in bytes.
func (m *Memory) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bytes
}
