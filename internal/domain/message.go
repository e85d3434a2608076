// Package domain contains core domain types for the Planfold application.
package domain

import (
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// MessageKind categorizes conversation messages.
type MessageKind string

const (
	// KindInput is a user-supplied requirement or reply.
	KindInput MessageKind = "input"
	// KindClarification is an agent question asked to refine the requirement.
	KindClarification MessageKind = "clarification"
	// KindStatus is a progress note emitted during processing.
	KindStatus MessageKind = "status"
	// KindError is a user-facing failure notice.
	KindError MessageKind = "error"
)

// Message is a single conversation entry. Messages are immutable once
// appended; insertion order is significant and is used to reconstruct
// context windows for prompt construction.
type Message struct {
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
}

// Size returns the serialized-size contribution of the message, used by the
// conversation memory byte cap.
func (m Message) Size() int {
	return len(m.Role) + len(m.Content) + len(m.Kind)
}
