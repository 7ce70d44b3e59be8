package identity

import (
	"context"
	"testing"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/hl7/parser"
	"github.com/serbia-gov/platform/internal/hl7err"
	"github.com/serbia-gov/platform/internal/shared/types"
)

// fakeStore is a minimal in-memory domain.Store for exercising the resolver
// without a database.
type fakeStore struct {
	domain.Store
	namespaces  map[string]*domain.Namespace
	identifiers map[string]*domain.Identifier
	patients    map[types.ID]*domain.Patient
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		namespaces:  map[string]*domain.Namespace{},
		identifiers: map[string]*domain.Identifier{},
		patients:    map[types.ID]*domain.Patient{},
	}
}

func (s *fakeStore) FindNamespaceByOID(_ context.Context, oid string) (*domain.Namespace, error) {
	return s.namespaces[oid], nil
}

func (s *fakeStore) CreateNamespace(_ context.Context, ns *domain.Namespace) error {
	s.namespaces[ns.OID] = ns
	return nil
}

func (s *fakeStore) FindIdentifier(_ context.Context, namespaceID types.ID, value string, owner domain.OwnerKind) (*domain.Identifier, error) {
	return s.identifiers[namespaceID.String()+"|"+value+"|"+string(owner)], nil
}

func (s *fakeStore) GetPatient(_ context.Context, id types.ID) (*domain.Patient, error) {
	return s.patients[id], nil
}

func TestResolveCreatesImplicitNamespace(t *testing.T) {
	store := newFakeStore()
	r := New()

	res, err := r.Resolve(context.Background(), store, []parser.CX{{Value: "12345", AuthorityName: "HOSP"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Patient != nil {
		t.Error("expected no patient match on first sighting of an identifier")
	}
	if len(store.namespaces) != 1 {
		t.Fatalf("expected one implicit namespace to be created, got %d", len(store.namespaces))
	}
}

func TestResolveMatchesExistingPatient(t *testing.T) {
	store := newFakeStore()
	ns := &domain.Namespace{ID: types.NewID(), OID: "1.2.3.4", Name: "HOSP", Type: domain.NamespacePI}
	store.namespaces[ns.OID] = ns
	patientID := types.NewID()
	store.patients[patientID] = &domain.Patient{ID: patientID}
	store.identifiers[ns.ID.String()+"|12345|patient"] = &domain.Identifier{
		OwnerID: patientID, OwnerKind: domain.OwnerPatient, NamespaceID: ns.ID, Value: "12345",
	}

	r := New()
	res, err := r.Resolve(context.Background(), store, []parser.CX{{Value: "12345", AuthorityName: "HOSP", AuthorityOID: "1.2.3.4"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Patient == nil || res.Patient.ID != patientID {
		t.Fatalf("expected patient %s, got %+v", patientID, res.Patient)
	}
}

func TestResolveAmbiguousIdentity(t *testing.T) {
	store := newFakeStore()
	ns := &domain.Namespace{ID: types.NewID(), OID: "1.2.3.4", Name: "HOSP", Type: domain.NamespacePI}
	store.namespaces[ns.OID] = ns
	p1, p2 := types.NewID(), types.NewID()
	store.identifiers[ns.ID.String()+"|111|patient"] = &domain.Identifier{OwnerID: p1, OwnerKind: domain.OwnerPatient, NamespaceID: ns.ID, Value: "111"}
	store.identifiers[ns.ID.String()+"|222|patient"] = &domain.Identifier{OwnerID: p2, OwnerKind: domain.OwnerPatient, NamespaceID: ns.ID, Value: "222"}

	r := New()
	_, err := r.Resolve(context.Background(), store, []parser.CX{
		{Value: "111", AuthorityName: "HOSP", AuthorityOID: "1.2.3.4"},
		{Value: "222", AuthorityName: "HOSP", AuthorityOID: "1.2.3.4"},
	})
	ge, ok := hl7err.As(err)
	if !ok {
		t.Fatalf("expected *GatewayError, got %v", err)
	}
	if ge.Code != hl7err.CodeAmbiguousIdentity {
		t.Errorf("expected AmbiguousIdentity, got %s", ge.Code)
	}
}
