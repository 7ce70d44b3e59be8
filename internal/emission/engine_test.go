package emission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/hl7err"
	"github.com/serbia-gov/platform/internal/messagelog"
	"github.com/serbia-gov/platform/internal/shared/errors"
	"github.com/serbia-gov/platform/internal/shared/types"
)

// fakeStore is a minimal in-memory domain.Tx covering exactly what the
// emission engine touches: patient/admin_file/visit/movement reload,
// subscriber listing, the outbox, and the message log.
type fakeStore struct {
	mu sync.Mutex

	patients    map[types.ID]*domain.Patient
	adminFiles  map[types.ID]*domain.AdminFile
	visits      map[types.ID]*domain.Visit
	movements   map[types.ID]*domain.Movement
	subscribers []*domain.Subscriber
	outbox      []*domain.EmissionOutbox
	logs        []*domain.MessageLogEntry

	// identifiers, keyed by owner kind then owner id, backs
	// ListIdentifiersForOwner for tests that need PID-3/PV1-19/ZBE-1
	// rendering to see something other than an empty list.
	identifiers map[domain.OwnerKind]map[types.ID][]*domain.IdentifierWithNamespace
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		patients:   map[types.ID]*domain.Patient{},
		adminFiles: map[types.ID]*domain.AdminFile{},
		visits:     map[types.ID]*domain.Visit{},
		movements:  map[types.ID]*domain.Movement{},
	}
}

func (s *fakeStore) Next(context.Context, domain.SequenceName) (int64, error) { return 1, nil }
func (s *fakeStore) FindNamespaceByOID(context.Context, string) (*domain.Namespace, error) {
	return nil, nil
}
func (s *fakeStore) CreateNamespace(context.Context, *domain.Namespace) error { return nil }
func (s *fakeStore) FindIdentifier(context.Context, types.ID, string, domain.OwnerKind) (*domain.Identifier, error) {
	return nil, nil
}
func (s *fakeStore) CreateIdentifier(context.Context, *domain.Identifier) error { return nil }
func (s *fakeStore) ListIdentifiersForOwner(_ context.Context, owner domain.OwnerKind, ownerID types.ID) ([]*domain.IdentifierWithNamespace, error) {
	return s.identifiers[owner][ownerID], nil
}

func (s *fakeStore) GetPatient(_ context.Context, id types.ID) (*domain.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, errors.NotFound("patient", id.String())
	}
	return p, nil
}
func (s *fakeStore) CreatePatient(context.Context, *domain.Patient) error { return nil }
func (s *fakeStore) UpdatePatient(context.Context, *domain.Patient) error { return nil }

func (s *fakeStore) FindAdminFileByPatientAndAdmitTime(context.Context, types.ID, interface{}) (*domain.AdminFile, error) {
	return nil, nil
}
func (s *fakeStore) FindAdminFileByNDA(context.Context, string) (*domain.AdminFile, error) {
	return nil, nil
}
func (s *fakeStore) GetAdminFile(_ context.Context, id types.ID) (*domain.AdminFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.adminFiles[id]
	if !ok {
		return nil, errors.NotFound("admin_file", id.String())
	}
	return f, nil
}
func (s *fakeStore) GetAdminFileForUpdate(ctx context.Context, id types.ID) (*domain.AdminFile, error) {
	return s.GetAdminFile(ctx, id)
}
func (s *fakeStore) CreateAdminFile(context.Context, *domain.AdminFile) error { return nil }
func (s *fakeStore) UpdateAdminFile(context.Context, *domain.AdminFile) error { return nil }

func (s *fakeStore) GetVisit(_ context.Context, id types.ID) (*domain.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits[id]
	if !ok {
		return nil, errors.NotFound("visit", id.String())
	}
	return v, nil
}
func (s *fakeStore) LatestVisitForFile(context.Context, types.ID) (*domain.Visit, error) {
	return nil, nil
}
func (s *fakeStore) CreateVisit(context.Context, *domain.Visit) error { return nil }
func (s *fakeStore) UpdateVisit(context.Context, *domain.Visit) error { return nil }

func (s *fakeStore) GetMovement(_ context.Context, id types.ID) (*domain.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.movements[id]
	if !ok {
		return nil, errors.NotFound("movement", id.String())
	}
	return m, nil
}
func (s *fakeStore) LatestMovementForVisit(context.Context, types.ID) (*domain.Movement, error) {
	return nil, nil
}
func (s *fakeStore) FindMovementByVisitAndSequence(context.Context, types.ID, int64) (*domain.Movement, error) {
	return nil, nil
}
func (s *fakeStore) CreateMovement(context.Context, *domain.Movement) error { return nil }
func (s *fakeStore) UpdateMovement(context.Context, *domain.Movement) error { return nil }

func (s *fakeStore) ListSubscribers(_ context.Context, kind domain.OwnerKind, operation string) ([]*domain.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Subscriber
	for _, sub := range s.subscribers {
		matchesKind := false
		for _, k := range sub.Kinds {
			if k == kind {
				matchesKind = true
				break
			}
		}
		if !matchesKind {
			continue
		}
		if len(sub.Operations) == 0 {
			out = append(out, sub)
			continue
		}
		for _, op := range sub.Operations {
			if op == operation {
				out = append(out, sub)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) AppendMessageLog(_ context.Context, entry *domain.MessageLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}

func (s *fakeStore) InsertEmissionOutbox(_ context.Context, row *domain.EmissionOutbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row.ID.IsZero() {
		row.ID = types.NewID()
	}
	s.outbox = append(s.outbox, row)
	return nil
}

func (s *fakeStore) ListUndispatchedOutbox(_ context.Context, limit int) ([]*domain.EmissionOutbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.EmissionOutbox
	for _, row := range s.outbox {
		if !row.Dispatched {
			out = append(out, row)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) MarkOutboxDispatched(_ context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.outbox {
		if row.ID == id {
			row.Dispatched = true
			return nil
		}
	}
	return errors.NotFound("emission_outbox", id.String())
}

func (s *fakeStore) Commit(context.Context) error   { return nil }
func (s *fakeStore) Rollback(context.Context) error { return nil }

type fakeDB struct{ store *fakeStore }

func (d *fakeDB) Begin(context.Context) (domain.Tx, error) { return d.store, nil }

// fakeDispatcher records every call it receives and replies with a
// canned (ackCode, err) pair, keyed by subscriber name.
type fakeDispatcher struct {
	mu    sync.Mutex
	calls []string
	reply map[string]struct {
		ackCode string
		err     error
	}
}

func (d *fakeDispatcher) Dispatch(_ context.Context, sub *domain.Subscriber, _ []byte) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, sub.Name)
	if r, ok := d.reply[sub.Name]; ok {
		return r.ackCode, r.err
	}
	return string(hl7err.AckAA), nil
}

func waitForLogs(t *testing.T, store *fakeStore, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		n := len(store.logs)
		store.mu.Unlock()
		if n >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d message log entries", want)
}

func TestEngineDispatchesToEachSubscriberAndRecordsFate(t *testing.T) {
	store := newFakeStore()
	patientID := types.NewID()
	store.patients[patientID] = &domain.Patient{ID: patientID, AdministrativeGender: "M"}
	store.subscribers = []*domain.Subscriber{
		{ID: types.NewID(), Name: "OK", Kinds: []domain.OwnerKind{domain.OwnerPatient}},
		{ID: types.NewID(), Name: "DOWN", Kinds: []domain.OwnerKind{domain.OwnerPatient}},
	}

	dispatcher := &fakeDispatcher{reply: map[string]struct {
		ackCode string
		err     error
	}{
		"DOWN": {err: hl7err.New(hl7err.KindSubscriber, hl7err.CodeConnectionRefused, "refused")},
	}}

	db := &fakeDB{store: store}
	mlog := messagelog.New(db)
	engine := New(db, dispatcher, mlog, Config{Concurrency: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)
	defer engine.Stop()

	engine.NotifyCommitted([]domain.Touched{
		{Kind: domain.OwnerPatient, ID: patientID, Operation: "insert", Trigger: "A28"},
	})

	waitForLogs(t, store, 2)

	var okStatus, downStatus string
	for _, entry := range store.logs {
		if entry.SubscriberID == nil {
			continue
		}
		for _, sub := range store.subscribers {
			if sub.ID == *entry.SubscriberID && sub.Name == "OK" {
				okStatus = entry.Status
			}
			if sub.ID == *entry.SubscriberID && sub.Name == "DOWN" {
				downStatus = entry.Status
			}
		}
	}
	if okStatus != "ack_ok" {
		t.Errorf("expected OK subscriber status ack_ok, got %q", okStatus)
	}
	if downStatus != "ack_error" {
		t.Errorf("expected DOWN subscriber status ack_error, got %q", downStatus)
	}

	if len(store.outbox) != 1 || !store.outbox[0].Dispatched {
		t.Fatalf("expected one dispatched outbox row, got %+v", store.outbox)
	}
}

func TestEngineFiltersSubscribersByOperation(t *testing.T) {
	store := newFakeStore()
	patientID := types.NewID()
	store.patients[patientID] = &domain.Patient{ID: patientID, AdministrativeGender: "M"}
	store.subscribers = []*domain.Subscriber{
		{ID: types.NewID(), Name: "INSERT_ONLY", Kinds: []domain.OwnerKind{domain.OwnerPatient}, Operations: []string{"insert"}},
		{ID: types.NewID(), Name: "BOTH", Kinds: []domain.OwnerKind{domain.OwnerPatient}},
	}

	dispatcher := &fakeDispatcher{reply: map[string]struct {
		ackCode string
		err     error
	}{}}

	db := &fakeDB{store: store}
	mlog := messagelog.New(db)
	engine := New(db, dispatcher, mlog, Config{Concurrency: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)
	defer engine.Stop()

	engine.NotifyCommitted([]domain.Touched{
		{Kind: domain.OwnerPatient, ID: patientID, Operation: "update", Trigger: "A08"},
	})

	waitForLogs(t, store, 1)

	if len(store.logs) != 1 {
		t.Fatalf("expected exactly one dispatch (BOTH only), got %d", len(store.logs))
	}
	for _, sub := range store.subscribers {
		if sub.ID == *store.logs[0].SubscriberID && sub.Name != "BOTH" {
			t.Errorf("expected only the insert-and-update subscriber to receive the update, got %s", sub.Name)
		}
	}
}

func TestEngineDeduplicatesTouchedEntitiesWithinOneCommit(t *testing.T) {
	store := newFakeStore()
	patientID := types.NewID()
	store.patients[patientID] = &domain.Patient{ID: patientID}

	db := &fakeDB{store: store}
	mlog := messagelog.New(db)
	engine := New(db, &fakeDispatcher{}, mlog, Config{Concurrency: 1})

	engine.NotifyCommitted([]domain.Touched{
		{Kind: domain.OwnerPatient, ID: patientID, Operation: "update", Trigger: "A31"},
		{Kind: domain.OwnerPatient, ID: patientID, Operation: "update", Trigger: "A31"},
	})

	if len(store.outbox) != 1 {
		t.Fatalf("expected exactly one outbox row for a duplicated touch, got %d", len(store.outbox))
	}
}

func TestEngineRecoverRequeuesUndispatchedRows(t *testing.T) {
	store := newFakeStore()
	patientID := types.NewID()
	store.patients[patientID] = &domain.Patient{ID: patientID}
	store.outbox = []*domain.EmissionOutbox{
		{ID: types.NewID(), EntityKind: domain.OwnerPatient, EntityID: patientID, Operation: "insert", Trigger: "A28"},
	}

	db := &fakeDB{store: store}
	mlog := messagelog.New(db)
	engine := New(db, &fakeDispatcher{}, mlog, Config{Concurrency: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := engine.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	engine.Start(ctx)
	defer engine.Stop()

	waitForLogs(t, store, 0) // give the worker a moment to drain the channel
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !store.outbox[0].Dispatched {
		time.Sleep(5 * time.Millisecond)
	}
	if !store.outbox[0].Dispatched {
		t.Fatal("expected the recovered outbox row to be marked dispatched")
	}
}
