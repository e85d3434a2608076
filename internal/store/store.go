// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/planfold/planfold/internal/domain"
)

// SessionSnapshot is the persisted view of a session, written best-effort on
// every state transition so sessions can be inspected after the fact.
type SessionSnapshot struct {
	SessionID   string
	State       domain.State
	Requirement string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repository defines the interface for persisting sessions, plans, and
// archived conversation messages.
type Repository interface {
	// SaveSession creates or updates a session snapshot.
	SaveSession(ctx context.Context, snap *SessionSnapshot) error

	// GetSession retrieves a session snapshot, or nil if absent.
	GetSession(ctx context.Context, sessionID string) (*SessionSnapshot, error)

	// DeleteSession removes a session snapshot and its stored plan.
	DeleteSession(ctx context.Context, sessionID string) error

	// SavePlan stores the latest normalized plan for a session.
	SavePlan(ctx context.Context, sessionID string, plan *domain.ImplementationPlan) error

	// GetPlan retrieves the latest stored plan for a session, or nil if absent.
	GetPlan(ctx context.Context, sessionID string) (*domain.ImplementationPlan, error)

	// ArchiveMessages appends messages evicted from conversation memory.
	ArchiveMessages(ctx context.Context, sessionID string, msgs []domain.Message) error

	// ArchivedMessages retrieves archived messages for a session in archival order.
	ArchivedMessages(ctx context.Context, sessionID string) ([]domain.Message, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
