// Package contextstore persists a block's active blockcontext.Context across
// process restarts: "save strictly precedes any dependent load in the same
// process." Two implementations are provided: an in-memory default (used by
// the CLI driver and most tests) and a Postgres-backed one using pgx
// directly.
package contextstore

import "context"

// BlockContextStorage is the persistence collaborator a document actor calls
// into whenever a block's active context changes, and reads from when
// rebuilding a document after a restart.
type BlockContextStorage interface {
	// Save persists ctx's serialized form for (documentID, blockID),
	// replacing whatever was previously stored.
	Save(ctx context.Context, documentID, blockID string, data []byte) error

	// Load returns the serialized context for (documentID, blockID), and
	// whether anything was stored.
	Load(ctx context.Context, documentID, blockID string) ([]byte, bool, error)

	// Delete removes any stored context for (documentID, blockID).
	Delete(ctx context.Context, documentID, blockID string) error

	// DeleteDocument removes every stored context belonging to documentID, used
	// when a document is torn down.
	DeleteDocument(ctx context.Context, documentID string) error

	// Close releases any resources held by the storage implementation.
	Close() error
}
