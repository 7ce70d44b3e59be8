package structure

import (
	"context"
	"testing"

	"github.com/serbia-gov/platform/internal/shared/errors"
	"github.com/serbia-gov/platform/internal/shared/types"
)

type memStore struct {
	nodes map[types.ID]*Node
}

func newMemStore() *memStore {
	return &memStore{nodes: map[types.ID]*Node{}}
}

func (s *memStore) Create(_ context.Context, n *Node) error {
	s.nodes[n.ID] = n
	return nil
}

func (s *memStore) Get(_ context.Context, id types.ID) (*Node, error) {
	return s.nodes[id], nil
}

func (s *memStore) FindByIdentifier(_ context.Context, identifier string) (*Node, error) {
	for _, n := range s.nodes {
		if n.Identifier == identifier {
			return n, nil
		}
	}
	return nil, nil
}

func (s *memStore) Children(_ context.Context, parentID types.ID) ([]*Node, error) {
	var out []*Node
	for _, n := range s.nodes {
		if n.ParentID != nil && *n.ParentID == parentID {
			out = append(out, n)
		}
	}
	return out, nil
}

func TestValidParentChildAdjacentLevelsOnly(t *testing.T) {
	if !ValidParentChild(Pole, Service) {
		t.Error("Pole -> Service should be valid")
	}
	if ValidParentChild(Pole, FunctionalUnit) {
		t.Error("Pole -> FunctionalUnit skips a level, should be invalid")
	}
	if ValidParentChild(Bed, Room) {
		t.Error("Bed -> Room is backwards, should be invalid")
	}
}

func TestCreateLegalEntityRequiresNoParent(t *testing.T) {
	r := NewResolver(newMemStore())
	ej := &Node{PhysicalType: LegalEntity, Identifier: "EJ1", Name: "CHU Demo"}
	if err := r.Create(context.Background(), ej); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ej.ID.IsZero() {
		t.Error("expected an ID to be assigned")
	}
}

func TestCreateRejectsSkippedLevel(t *testing.T) {
	r := NewResolver(newMemStore())
	ej := &Node{PhysicalType: LegalEntity, Identifier: "EJ1"}
	if err := r.Create(context.Background(), ej); err != nil {
		t.Fatalf("Create EJ: %v", err)
	}

	uf := &Node{PhysicalType: FunctionalUnit, Identifier: "UF1", ParentID: &ej.ID}
	err := r.Create(context.Background(), uf)
	if err == nil {
		t.Fatal("expected error attaching a FunctionalUnit directly under a LegalEntity")
	}
	if ae, ok := err.(*errors.AppError); !ok || ae.Code != "BAD_REQUEST" {
		t.Errorf("expected BadRequest, got %v", err)
	}
}

func TestPathWalksAncestorsRootFirst(t *testing.T) {
	r := NewResolver(newMemStore())
	ej := &Node{PhysicalType: LegalEntity, Identifier: "EJ1"}
	r.Create(context.Background(), ej)
	eg := &Node{PhysicalType: GeographicEntity, Identifier: "EG1", ParentID: &ej.ID}
	r.Create(context.Background(), eg)
	pole := &Node{PhysicalType: Pole, Identifier: "POLE1", ParentID: &eg.ID}
	r.Create(context.Background(), pole)

	path, err := r.Path(context.Background(), pole.ID)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if len(path) != 3 {
		t.Fatalf("expected 3 ancestors including self, got %d", len(path))
	}
	if path[0].Identifier != "EJ1" || path[2].Identifier != "POLE1" {
		t.Errorf("expected root-first ordering EJ1..POLE1, got %v, %v", path[0].Identifier, path[2].Identifier)
	}
}

func TestResolveByIdentifierReturnsNilWhenMissing(t *testing.T) {
	r := NewResolver(newMemStore())
	n, err := r.Resolve(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if n != nil {
		t.Error("expected nil node for unknown identifier")
	}
}
