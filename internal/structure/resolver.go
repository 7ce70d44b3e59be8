package structure

import (
	"context"
	"fmt"

	apperrors "github.com/serbia-gov/platform/internal/shared/errors"
	"github.com/serbia-gov/platform/internal/shared/types"
)

// Resolver is the topology tree's public API: validated creation plus the
// lookups the rest of the gateway needs (a Visit/Movement's Location string
// resolves to a Node's Identifier here).
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Create validates the hierarchy invariant (a node's parent must be exactly
// one level above it, or absent for a LegalEntity root) before persisting.
func (r *Resolver) Create(ctx context.Context, n *Node) error {
	if n.PhysicalType.rank() < 0 {
		return apperrors.BadRequest(fmt.Sprintf("unrecognized physical_type %q", n.PhysicalType))
	}

	if n.PhysicalType == LegalEntity {
		if n.ParentID != nil {
			return apperrors.BadRequest("legal_entity nodes may not have a parent")
		}
	} else {
		if n.ParentID == nil {
			return apperrors.BadRequest(fmt.Sprintf("%s nodes require a parent", n.PhysicalType))
		}
		parent, err := r.store.Get(ctx, *n.ParentID)
		if err != nil {
			return err
		}
		if parent == nil {
			return apperrors.NotFound("structure node", n.ParentID.String())
		}
		if !ValidParentChild(parent.PhysicalType, n.PhysicalType) {
			return apperrors.BadRequest(fmt.Sprintf("a %s may not be attached under a %s", n.PhysicalType, parent.PhysicalType))
		}
	}

	if n.ID.IsZero() {
		n.ID = types.NewID()
	}
	return r.store.Create(ctx, n)
}

// Resolve looks a node up by its external identifier, the form a Visit or
// Movement's Location field carries on the wire.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (*Node, error) {
	return r.store.FindByIdentifier(ctx, identifier)
}

// Path returns the chain of ancestors from the root LegalEntity down to and
// including n, by walking ParentID.
func (r *Resolver) Path(ctx context.Context, id types.ID) ([]*Node, error) {
	var path []*Node
	for {
		n, err := r.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, apperrors.NotFound("structure node", id.String())
		}
		path = append([]*Node{n}, path...)
		if n.ParentID == nil {
			return path, nil
		}
		id = *n.ParentID
	}
}

// Children returns a node's direct descendants, e.g. a Service's Functional
// Units.
func (r *Resolver) Children(ctx context.Context, parentID types.ID) ([]*Node, error) {
	return r.store.Children(ctx, parentID)
}
