package mssqlimport

import (
	"context"
	"database/sql"
	"testing"

	"github.com/serbia-gov/platform/internal/shared/types"
	"github.com/serbia-gov/platform/internal/structure"
)

type memStore struct {
	nodes map[types.ID]*structure.Node
}

func newMemStore() *memStore {
	return &memStore{nodes: map[types.ID]*structure.Node{}}
}

func (s *memStore) Create(_ context.Context, n *structure.Node) error {
	s.nodes[n.ID] = n
	return nil
}

func (s *memStore) Get(_ context.Context, id types.ID) (*structure.Node, error) {
	return s.nodes[id], nil
}

func (s *memStore) FindByIdentifier(_ context.Context, identifier string) (*structure.Node, error) {
	for _, n := range s.nodes {
		if n.Identifier == identifier {
			return n, nil
		}
	}
	return nil, nil
}

func (s *memStore) Children(_ context.Context, parentID types.ID) ([]*structure.Node, error) {
	var out []*structure.Node
	for _, n := range s.nodes {
		if n.ParentID != nil && *n.ParentID == parentID {
			out = append(out, n)
		}
	}
	return out, nil
}

func newRootedResolver(t *testing.T) (*structure.Resolver, *structure.Node) {
	t.Helper()
	store := newMemStore()
	r := structure.NewResolver(store)
	eg := &structure.Node{PhysicalType: structure.GeographicEntity, Identifier: "SITE1", Name: "Site demo"}
	if err := r.Create(context.Background(), eg); err != nil {
		t.Fatalf("seed root: %v", err)
	}
	return r, eg
}

func TestImportDepartmentsCreatesTopDownOrder(t *testing.T) {
	r, eg := newRootedResolver(t)
	im := New(Config{RootIdentifier: "SITE1"}, r)

	rows := []departmentRow{
		{Code: "POLE1", Name: "Pole demo", Level: "pole"},
		{Code: "SVC1", Name: "Service demo", Level: "service", ParentCode: sql.NullString{String: "POLE1", Valid: true}},
	}

	created, err := im.importDepartments(context.Background(), eg, rows)
	if err != nil {
		t.Fatalf("importDepartments: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 nodes created, got %d", created)
	}

	svc, err := r.Resolve(context.Background(), "SVC1")
	if err != nil {
		t.Fatalf("Resolve SVC1: %v", err)
	}
	if svc == nil {
		t.Fatal("expected SVC1 to be created")
	}
	pole, err := r.Resolve(context.Background(), "POLE1")
	if err != nil {
		t.Fatalf("Resolve POLE1: %v", err)
	}
	if svc.ParentID == nil || *svc.ParentID != pole.ID {
		t.Error("expected SVC1's parent to be POLE1")
	}
}

func TestImportDepartmentsToleratesOutOfOrderRows(t *testing.T) {
	r, eg := newRootedResolver(t)
	im := New(Config{RootIdentifier: "SITE1"}, r)

	// Child row listed before its parent row, as an unsorted HIS export would.
	rows := []departmentRow{
		{Code: "UF1", Name: "UF demo", Level: "uf", ParentCode: sql.NullString{String: "SVC1", Valid: true}},
		{Code: "SVC1", Name: "Service demo", Level: "service", ParentCode: sql.NullString{String: "POLE1", Valid: true}},
		{Code: "POLE1", Name: "Pole demo", Level: "pole"},
	}

	created, err := im.importDepartments(context.Background(), eg, rows)
	if err != nil {
		t.Fatalf("importDepartments: %v", err)
	}
	if created != 3 {
		t.Fatalf("expected 3 nodes created, got %d", created)
	}
}

func TestImportDepartmentsSkipsUnrecognizedLevel(t *testing.T) {
	r, eg := newRootedResolver(t)
	im := New(Config{RootIdentifier: "SITE1"}, r)

	rows := []departmentRow{
		{Code: "MYSTERY1", Name: "Unknown level", Level: "plateau-technique"},
	}

	created, err := im.importDepartments(context.Background(), eg, rows)
	if err != nil {
		t.Fatalf("importDepartments: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected unrecognized level to be skipped, got %d created", created)
	}
}

func TestImportDepartmentsErrorsOnUnresolvableParent(t *testing.T) {
	r, eg := newRootedResolver(t)
	im := New(Config{RootIdentifier: "SITE1"}, r)

	rows := []departmentRow{
		{Code: "SVC1", Name: "Orphan service", Level: "service", ParentCode: sql.NullString{String: "NOPE", Valid: true}},
	}

	_, err := im.importDepartments(context.Background(), eg, rows)
	if err == nil {
		t.Fatal("expected an error for a department referencing a parent that never resolves")
	}
}
