package todo

import (
	"context"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/view"
)

// Adapter is the durable side of a Store. Implementations must be safe for
// concurrent use.
type Adapter interface {
	// Create stores t (its ID may be empty) and returns the id it was stored
	// under. An empty id tells the store to keep the one it proposed.
	Create(ctx context.Context, t model.Todo) (string, error)
	// ReadAll returns stored todos. Adapters that can evaluate q close to
	// the data should; the store reapplies q either way.
	ReadAll(ctx context.Context, q view.Query) ([]model.Todo, error)
	// Update applies p to the todo with id. Repeating it is harmless.
	Update(ctx context.Context, id string, p model.Patch) error
	// Delete removes id. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error
}

// Closer is implemented by adapters that hold connections.
type Closer interface {
	Close(ctx context.Context) error
}
