// Package store persists easel documents and their serialized history
// stacks. The Store interface is the remote-store boundary the sync layer
// saves through; MemoryStore and SQLiteStore back the server, HTTPStore is
// the client over the documents API.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/easel/internal/history"
	"github.com/haasonsaas/easel/pkg/models"
)

var (
	ErrNotFound       = errors.New("store: not found")
	ErrAlreadyExists  = errors.New("store: already exists")
	ErrCorruptHistory = errors.New("store: corrupt history")
)

// Store persists documents and histories.
type Store interface {
	// List returns the compact listing of all documents.
	List(ctx context.Context) ([]models.DocumentInfo, error)

	// Create persists a brand-new document; ErrAlreadyExists if the id is
	// taken.
	Create(ctx context.Context, doc *models.Document) error

	// Get returns the full document.
	Get(ctx context.Context, id string) (*models.Document, error)

	// Put upserts the document and returns the authoritative modification
	// time. A document carrying its own ModifiedAt keeps it; otherwise the
	// store assigns one.
	Put(ctx context.Context, doc *models.Document) (time.Time, error)

	// Delete removes the document and its history.
	Delete(ctx context.Context, id string) error

	// ModifiedAt is the lightweight probe used for conflict detection.
	ModifiedAt(ctx context.Context, id string) (time.Time, error)

	// GetHistory returns the persisted history stack; ErrCorruptHistory
	// wraps deserialize failures so callers can fall back to a fresh stack.
	GetHistory(ctx context.Context, id string) (*history.Stack, error)

	// PutHistory persists the history stack.
	PutHistory(ctx context.Context, id string, stack *history.Stack) error
}
