package domain

import (
	"context"

	"github.com/serbia-gov/platform/internal/shared/types"
)

// SequenceName identifies one of the named monotonic counters (spec §4.3).
type SequenceName string

const (
	SeqPatient   SequenceName = "patient"
	SeqAdminFile SequenceName = "admin_file"
	SeqVisit     SequenceName = "visit"
	SeqMovement  SequenceName = "movement"
)

// Sequences allocates monotonically increasing, persisted counters under
// SERIALIZABLE semantics. Implementations must guarantee that concurrent
// Next calls for the same name never return the same value.
type Sequences interface {
	Next(ctx context.Context, name SequenceName) (int64, error)
}

// Tx is a unit-of-work boundary: every mutation in the inbound handler's
// pipeline runs against the Store obtained from a single Tx (spec §4.6 —
// "all inside ONE transaction").
type Tx interface {
	Store
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the persistence surface the rest of the pipeline (C4 identity
// resolver, C5 state machine, C6 inbound handler, C7 generator, C8 emission
// engine) depends on, implemented by internal/domain/postgres.
type Store interface {
	Sequences

	FindNamespaceByOID(ctx context.Context, oid string) (*Namespace, error)
	CreateNamespace(ctx context.Context, ns *Namespace) error

	FindIdentifier(ctx context.Context, namespaceID types.ID, value string, owner OwnerKind) (*Identifier, error)
	CreateIdentifier(ctx context.Context, id *Identifier) error
	// ListIdentifiersForOwner returns every active identifier attached to
	// one owner, each joined with its Namespace for rendering (C7).
	ListIdentifiersForOwner(ctx context.Context, owner OwnerKind, ownerID types.ID) ([]*IdentifierWithNamespace, error)

	GetPatient(ctx context.Context, id types.ID) (*Patient, error)
	CreatePatient(ctx context.Context, p *Patient) error
	UpdatePatient(ctx context.Context, p *Patient) error

	FindAdminFileByPatientAndAdmitTime(ctx context.Context, patientID types.ID, admitTime interface{}) (*AdminFile, error)
	FindAdminFileByNDA(ctx context.Context, nda string) (*AdminFile, error)
	GetAdminFile(ctx context.Context, id types.ID) (*AdminFile, error)
	// GetAdminFileForUpdate locks the file row (SELECT ... FOR UPDATE) so
	// that concurrent transitions on the same file serialize.
	GetAdminFileForUpdate(ctx context.Context, id types.ID) (*AdminFile, error)
	CreateAdminFile(ctx context.Context, f *AdminFile) error
	UpdateAdminFile(ctx context.Context, f *AdminFile) error

	GetVisit(ctx context.Context, id types.ID) (*Visit, error)
	LatestVisitForFile(ctx context.Context, fileID types.ID) (*Visit, error)
	CreateVisit(ctx context.Context, v *Visit) error
	UpdateVisit(ctx context.Context, v *Visit) error

	GetMovement(ctx context.Context, id types.ID) (*Movement, error)
	LatestMovementForVisit(ctx context.Context, visitID types.ID) (*Movement, error)
	FindMovementByVisitAndSequence(ctx context.Context, visitID types.ID, sequence int64) (*Movement, error)
	CreateMovement(ctx context.Context, m *Movement) error
	UpdateMovement(ctx context.Context, m *Movement) error

	// ListSubscribers returns enabled subscribers registered for the given
	// entity kind AND interested in the given operation ("insert" or
	// "update") — spec §4.8 step 2.
	ListSubscribers(ctx context.Context, kind OwnerKind, operation string) ([]*Subscriber, error)

	AppendMessageLog(ctx context.Context, entry *MessageLogEntry) error

	// InsertEmissionOutbox durably records one touched entity for the
	// emission engine to pick up after commit (spec §4.8).
	InsertEmissionOutbox(ctx context.Context, row *EmissionOutbox) error
	// ListUndispatchedOutbox returns outbox rows not yet marked dispatched,
	// oldest first, used both by the live dispatch path and by a recovery
	// sweep on startup for rows orphaned by a crash.
	ListUndispatchedOutbox(ctx context.Context, limit int) ([]*EmissionOutbox, error)
	MarkOutboxDispatched(ctx context.Context, id types.ID) error
}

// Begin starts a new unit of work; implemented by internal/domain/postgres.
type Database interface {
	Begin(ctx context.Context) (Tx, error)
}
