// Package store persists command records across the plan/approve/execute
// workflow. An in-memory implementation backs tests and throwaway setups; the
// SQLite implementation keeps history across restarts.
package store

import (
	"context"

	v1 "github.com/agentsocial/agentsocial/pkg/api/v1"
)

// Store defines the interface for command history storage.
type Store interface {
	// Create persists a new command record, assigning an ID if empty.
	Create(ctx context.Context, rec *v1.CommandRecord) error

	// Get retrieves a record by ID.
	Get(ctx context.Context, id string) (*v1.CommandRecord, error)

	// GetByCorrelation retrieves a record by its upstream correlation ID.
	GetByCorrelation(ctx context.Context, correlationID string) (*v1.CommandRecord, error)

	// Update persists changed fields of an existing record.
	Update(ctx context.Context, rec *v1.CommandRecord) error

	// ListRecent returns the most recently updated records, newest first.
	ListRecent(ctx context.Context, limit int) ([]*v1.CommandRecord, error)

	// ListByChat returns a conversation's records, newest first.
	ListByChat(ctx context.Context, appID, chatID string, limit int) ([]*v1.CommandRecord, error)

	// Close closes the store (for database connections).
	Close() error
}
