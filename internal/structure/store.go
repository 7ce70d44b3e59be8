package structure

import (
	"context"

	"github.com/serbia-gov/platform/internal/shared/types"
)

// Store is the persistence surface for the topology tree, implemented by
// internal/structure/postgres.
type Store interface {
	Create(ctx context.Context, n *Node) error
	Get(ctx context.Context, id types.ID) (*Node, error)
	FindByIdentifier(ctx context.Context, identifier string) (*Node, error)
	Children(ctx context.Context, parentID types.ID) ([]*Node, error)
}
