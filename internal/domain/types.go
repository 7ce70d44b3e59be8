// Package domain holds the entities of the ADT/PAM data model (spec §3):
// Namespace, Identifier, Patient, AdminFile, Visit, Movement and
// Subscriber, together with the sequence allocator and store interfaces
// that internal/domain/postgres implements.
package domain

import (
	"time"

	"github.com/serbia-gov/platform/internal/shared/types"
)

type NamespaceType string

const (
	NamespaceIPP    NamespaceType = "IPP"
	NamespaceNDA    NamespaceType = "NDA"
	NamespaceVN     NamespaceType = "VN"
	NamespaceMVT    NamespaceType = "MVT"
	NamespaceFINESS NamespaceType = "FINESS"
	NamespacePI     NamespaceType = "PI"
)

type NamespaceScope string

const (
	ScopeGHT         NamespaceScope = "GHT"
	ScopeLegalEntity NamespaceScope = "LegalEntity"
)

// Namespace defines the authority issuing identifiers of a given type.
type Namespace struct {
	ID    types.ID
	Name  string
	OID   string
	Type  NamespaceType
	Scope NamespaceScope
}

type IdentifierStatus string

const (
	IdentifierActive   IdentifierStatus = "active"
	IdentifierInactive IdentifierStatus = "inactive"
)

// OwnerKind names which entity kind an Identifier is attached to (I1: the
// (namespace, value) pair is unique among active identifiers of the same
// owner kind).
type OwnerKind string

const (
	OwnerPatient   OwnerKind = "patient"
	OwnerAdminFile OwnerKind = "admin_file"
	OwnerVisit     OwnerKind = "visit"
	OwnerMovement  OwnerKind = "movement"
)

// Identifier is an opaque value (I6: no parsing permitted) scoped to a
// namespace and owned by exactly one entity.
type Identifier struct {
	ID          types.ID
	Value       string
	NamespaceID types.ID
	Status      IdentifierStatus
	OwnerKind   OwnerKind
	OwnerID     types.ID
}

// IdentifierWithNamespace flattens an Identifier with its owning Namespace,
// for the generator (C7) which needs the authority name/OID alongside the
// raw value to render a CX.
type IdentifierWithNamespace struct {
	Identifier
	NamespaceName string
	NamespaceOID  string
	NamespaceType NamespaceType
}

type NameKind string

const (
	NameUsual NameKind = "D"
	NameBirth NameKind = "L"
)

type PersonName struct {
	Family, Given, Middle, Suffix, Prefix string
	Kind                                  NameKind
}

type AddressKind string

const (
	AddressHome  AddressKind = "home"
	AddressBirth AddressKind = "birth"
)

type PersonAddress struct {
	Street, Other, City, State, Zip, Country string
	Kind                                     AddressKind
}

type PhoneKind string

const (
	PhoneHome   PhoneKind = "home"
	PhoneMobile PhoneKind = "mobile"
	PhoneWork   PhoneKind = "work"
)

type PersonPhone struct {
	Value, Equipment string
	Kind             PhoneKind
}

// IdentityReliability is PID-32's VALI/PROV/DOUB code.
type IdentityReliability string

const (
	ReliabilityValidated IdentityReliability = "VALI"
	ReliabilityProvision IdentityReliability = "PROV"
	ReliabilityDoubtful  IdentityReliability = "DOUB"
)

// Patient is the demographic aggregate root (I2: owns Files transitively,
// and exclusively owns its Identifiers).
type Patient struct {
	ID                  types.ID
	Names               []PersonName
	Addresses           []PersonAddress
	Phones              []PersonPhone
	BirthDate           *time.Time
	AdministrativeGender string
	SSN                 string
	MothersMaidenName   string
	BirthPlace          string
	MaritalStatus       string
	Reliability         IdentityReliability
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type AdmissionType string

const (
	AdmissionHospitalized AdmissionType = "HOSPITALIZED"
	AdmissionOutpatient   AdmissionType = "OUTPATIENT"
	AdmissionEmergency    AdmissionType = "EMERGENCY"
)

// AdminFile is a patient's administrative dossier (I3: CurrentState tracks
// the latest non-cancelled movement's trigger).
type AdminFile struct {
	ID            types.ID
	PatientID     types.ID
	AdmissionType AdmissionType
	UFMedical     string
	UFHousing     string
	UFCare        string
	AdmitTime     time.Time
	DischargeTime *time.Time
	CurrentState  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type OperationalStatus string

const (
	VisitPlanned   OperationalStatus = "planned"
	VisitActive    OperationalStatus = "active"
	VisitSuspended OperationalStatus = "suspended"
	VisitCancelled OperationalStatus = "cancelled"
	VisitFinished  OperationalStatus = "finished"
)

// Visit is one contiguous presence at a physical location (I2: belongs to
// exactly one AdminFile).
type Visit struct {
	ID                types.ID
	AdminFileID       types.ID
	StartTime         time.Time
	EndTime           *time.Time
	Location          string
	UFMedical         string
	UFHousing         string
	UFCare            string
	OperationalStatus OperationalStatus
}

type MovementNature string

const (
	NatureMedical       MovementNature = "M"
	NatureHousing       MovementNature = "H"
	NatureCare          MovementNature = "S"
	NatureLocalization  MovementNature = "L"
	NatureDateCorrection MovementNature = "D"
	NatureCancellation  MovementNature = "C"
)

type MovementAction string

const (
	ActionInsert MovementAction = "INSERT"
	ActionUpdate MovementAction = "UPDATE"
	ActionCancel MovementAction = "CANCEL"
)

// Movement is a state-changing event within a Visit (I4: totally ordered by
// Sequence within the visit; I5: a CANCEL action references CancelledID).
type Movement struct {
	ID           types.ID
	VisitID      types.ID
	Sequence     int64
	Timestamp    time.Time
	TriggerEvent string
	Nature       MovementNature
	Action       MovementAction
	Location     string
	CancelledID  *types.ID
	Cancelled    bool
}

type TransportKind string

const (
	TransportMLLP TransportKind = "MLLP"
	TransportFile TransportKind = "FILE"
	TransportFHIR TransportKind = "FHIR"
)

// Subscriber is a downstream system registered to receive outbound
// messages (consumed by the emission engine, C8).
type Subscriber struct {
	ID         types.ID
	Name       string
	Transport  TransportKind
	Endpoint   string
	StrictMode bool
	Enabled    bool
	SendingApp      string
	SendingFacility string
	Kinds      []OwnerKind
	// Operations restricts fan-out to the named Touched.Operation values
	// ("insert", "update"); empty means the subscriber wants both (spec
	// §4.8 step 2).
	Operations []string
}

// Touched names one entity mutated by the inbound pipeline within the just
// committed transaction, handed to the emission engine (spec §4.8) so it
// can fan the change out to subscribers after commit.
type Touched struct {
	Kind      OwnerKind
	ID        types.ID
	Operation string // "insert" or "update"
	Trigger   string
}

// MessageDirection distinguishes an inbound ADT message from an outbound
// generated one in the message log (spec §4.10).
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "in"
	DirectionOutbound MessageDirection = "out"
)

// EmissionOutbox is a durable record of one entity mutation awaiting
// fan-out by the emission engine (C8), so a crash between commit and
// dispatch does not silently drop an outbound notification.
type EmissionOutbox struct {
	ID         types.ID
	EntityKind OwnerKind
	EntityID   types.ID
	Operation  string
	Trigger    string
	CreatedAt  time.Time
	Dispatched bool
}

// MessageLogEntry is one row of the append-only message log.
type MessageLogEntry struct {
	ID            types.ID
	Direction     MessageDirection
	CorrelationID string
	ControlID     string
	SubscriberID  *types.ID
	Payload       string
	Status        string
	AckCode       string
	ErrorText     string
	CreatedAt     time.Time
}
