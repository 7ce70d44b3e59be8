// Package inbound orchestrates the single-transaction ADT ingestion
// pipeline: deframe/parse -> identity -> state machine -> domain store ->
// message log, then returns an ACK (spec §4.6).
package inbound

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/emissionguard"
	"github.com/serbia-gov/platform/internal/hl7/parser"
	"github.com/serbia-gov/platform/internal/hl7/wire"
	"github.com/serbia-gov/platform/internal/hl7err"
	"github.com/serbia-gov/platform/internal/identity"
	"github.com/serbia-gov/platform/internal/messagelog"
	"github.com/serbia-gov/platform/internal/pam"
	"github.com/serbia-gov/platform/internal/shared/metrics"
	"github.com/serbia-gov/platform/internal/shared/types"
	"github.com/serbia-gov/platform/internal/structure"
)

// identityOnlyTriggers never touch AdminFile/Visit/Movement.
var identityOnlyTriggers = map[string]bool{"A28": true, "A31": true}

// movementTriggers carry a ZBE-backed state transition.
var movementTriggers = map[string]bool{
	"A01": true, "A02": true, "A03": true, "A04": true, "A05": true,
	"A06": true, "A07": true, "A08": true, "A11": true, "A12": true,
	"A13": true, "A21": true, "A22": true,
}

// correctionTriggers carry a ZBE-9=C field-level correction (spec §4.5's
// Z99 row) instead of a state transition: current_state is left untouched.
var correctionTriggers = map[string]bool{"Z99": true}

// Z99AllowList bounds which entity fields an inline Z99 correction may
// mutate (DESIGN.md Open Question #3).
var Z99AllowList = map[string]map[string]bool{
	"AdminFile": {"uf_medical": true, "uf_housing": true, "uf_care": true},
	"Visit":     {"location": true, "operational_status": true},
	"Movement":  {"location": true},
}

// Emitter is notified of every entity mutated by a committed transaction,
// so the emission engine can fan the change out to subscribers. Defined
// here rather than imported from the emission package so inbound does not
// depend on it: the concrete emission engine satisfies this interface
// structurally.
type Emitter interface {
	NotifyCommitted(touched []domain.Touched)
}

// Handler runs the inbound pipeline for a single deframed HL7 payload.
type Handler struct {
	db           domain.Database
	resolver     *identity.Resolver
	log          *messagelog.Log
	emitter      Emitter
	strictGlobal bool
	appName      string
	facilityCode string
	structure    *structure.Resolver
}

func New(db domain.Database, resolver *identity.Resolver, log *messagelog.Log, emitter Emitter, strictGlobal bool) *Handler {
	return &Handler{
		db: db, resolver: resolver, log: log, emitter: emitter, strictGlobal: strictGlobal,
		appName: "GATEWAY", facilityCode: "GATEWAY",
	}
}

// WithFacility overrides the sending application/facility identifiers this
// gateway presents on outbound ACKs (SPEC_FULL.md facility config), in
// place of the default placeholder.
func (h *Handler) WithFacility(appName, facilityCode string) *Handler {
	if appName != "" {
		h.appName = appName
	}
	if facilityCode != "" {
		h.facilityCode = facilityCode
	}
	return h
}

// WithStructure attaches the topology lookup a Visit/Movement's flat
// Location field resolves against (SPEC_FULL.md §9: "ambient structural
// data the Domain Store references... the tree and its lookup API are in
// scope because Visit/Movement location fields need it"). Resolution is
// advisory, not a gate: an HIS location code this gateway has not imported
// yet must not block admission traffic, so a miss is logged and otherwise
// ignored rather than rejecting the message.
func (h *Handler) WithStructure(resolver *structure.Resolver) *Handler {
	h.structure = resolver
	return h
}

// checkLocation looks up location in the topology tree, when one is
// configured, purely for diagnostic visibility into unimported HIS codes.
func (h *Handler) checkLocation(ctx context.Context, location string) {
	if h.structure == nil || location == "" {
		return
	}
	node, err := h.structure.Resolve(ctx, location)
	if err != nil {
		log.Printf("inbound: structure lookup for location %q failed: %v", location, err)
		return
	}
	if node == nil {
		log.Printf("inbound: location %q not found in imported topology", location)
	}
}

// Ack is the HL7 MSH+MSA(+ERR) acknowledgment the caller frames and writes
// back on the connection.
type Ack struct {
	Code         hl7err.AckCode
	ControlID    string
	Text         string
	ErrorCode    string
	AppName      string
	FacilityCode string
}

// Frame renders the Ack as a complete framed HL7 ACK message.
func (a Ack) Frame(now time.Time) []byte {
	appName, facilityCode := a.AppName, a.FacilityCode
	if appName == "" {
		appName = "GATEWAY"
	}
	if facilityCode == "" {
		facilityCode = "GATEWAY"
	}
	controlID := fmt.Sprintf("ACK%s", now.UTC().Format("20060102150405"))
	msh := fmt.Sprintf("MSH|^~\\&|%s|%s|||%s||ACK|%s|P|2.5",
		appName, facilityCode,
		now.UTC().Format("20060102150405"), controlID)
	msa := fmt.Sprintf("MSA|%s|%s|%s", a.Code, a.ControlID, a.Text)
	payload := msh + string(rune(0x0D)) + msa
	if a.Code != hl7err.AckAA && a.ErrorCode != "" {
		payload += string(rune(0x0D)) + fmt.Sprintf("ERR||||%s^%s", a.ErrorCode, a.Text)
	}
	return wire.Frame([]byte(payload))
}

// Handle runs the full spec §4.6 pipeline against one deframed payload.
func (h *Handler) Handle(ctx context.Context, payload []byte) (ack Ack) {
	trigger := "UNKNOWN"
	defer func() { metrics.RecordHL7Received(trigger, string(ack.Code)) }()

	msg, err := parser.Parse(payload)
	if err != nil {
		h.log.RecordParseError(ctx, payload, err)
		ack = h.ackFor(err, "")
		return
	}
	trigger = msg.MSH.Trigger

	tx, err := h.db.Begin(ctx)
	if err != nil {
		ge := hl7err.Wrap(hl7err.KindTransient, hl7err.CodeTransactionSerializationFailure, "failed to begin transaction", err)
		ack = h.ackFor(ge, msg.MSH.ControlID)
		return
	}

	touched, err := h.process(ctx, tx, msg)
	if err != nil {
		tx.Rollback(ctx)
		h.log.RecordInbound(ctx, payload, msg.MSH.ControlID, err)
		ack = h.ackFor(err, msg.MSH.ControlID)
		return
	}

	if err := h.log.AppendInbound(ctx, tx, payload, msg.MSH.ControlID); err != nil {
		tx.Rollback(ctx)
		ack = h.ackFor(err, msg.MSH.ControlID)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		ge := hl7err.Wrap(hl7err.KindTransient, hl7err.CodeTransactionSerializationFailure, "commit failed", err)
		ack = h.ackFor(ge, msg.MSH.ControlID)
		return
	}

	// A dispatch task that loops back into this gateway (a misconfigured
	// subscriber pointed at its own inbound listener) carries the emission
	// guard on its context; skip scheduling another round in that case.
	if !emissionguard.InProgress(ctx) {
		h.emitter.NotifyCommitted(touched)
	}

	ack = Ack{Code: hl7err.AckAA, ControlID: msg.MSH.ControlID, Text: "message accepted", AppName: h.appName, FacilityCode: h.facilityCode}
	return
}

func (h *Handler) ackFor(err error, controlID string) Ack {
	code := hl7err.AckCodeFor(err)
	text := "ok"
	errCode := ""
	if ge, ok := hl7err.As(err); ok {
		text = ge.Message
		errCode = ge.Code
	} else if err != nil {
		text = err.Error()
	}
	return Ack{Code: code, ControlID: controlID, Text: text, ErrorCode: errCode, AppName: h.appName, FacilityCode: h.facilityCode}
}

// process implements spec §4.6 steps 3-6 inside tx, returning the set of
// entities mutated for the emission engine.
func (h *Handler) process(ctx context.Context, store domain.Store, msg *parser.Message) ([]domain.Touched, error) {
	var touched []domain.Touched
	trigger := msg.MSH.Trigger

	if !identityOnlyTriggers[trigger] && !movementTriggers[trigger] && !correctionTriggers[trigger] && trigger != "A40" && len(msg.Z99s) == 0 {
		return nil, hl7err.New(hl7err.KindSemantic, hl7err.CodeUnsupportedTrigger,
			"trigger is not a recognized ADT event", "trigger", trigger)
	}

	// Step 3: identity phase.
	var patient *domain.Patient
	if msg.PID != nil {
		res, err := h.resolver.Resolve(ctx, store, msg.PID.Identifiers)
		if err != nil {
			return nil, err
		}
		patient = res.Patient

		if patient == nil {
			if !identity.CreatablePatientTriggers[trigger] && trigger != "A31" {
				return nil, hl7err.New(hl7err.KindSemantic, hl7err.CodeAmbiguousIdentity,
					"no patient resolved and trigger may not create one", "trigger", trigger)
			}
			patient = newPatientFromPID(msg.PID)
			if err := store.CreatePatient(ctx, patient); err != nil {
				return nil, err
			}
			touched = append(touched, domain.Touched{Kind: domain.OwnerPatient, ID: patient.ID, Operation: "insert", Trigger: trigger})
		} else {
			mergePatientFromPID(patient, msg.PID)
			patient.UpdatedAt = now()
			if err := store.UpdatePatient(ctx, patient); err != nil {
				return nil, err
			}
			touched = append(touched, domain.Touched{Kind: domain.OwnerPatient, ID: patient.ID, Operation: "update", Trigger: trigger})
		}

		for _, cx := range msg.PID.Identifiers {
			if err := h.ensureIdentifier(ctx, store, cx, domain.OwnerPatient, patient.ID); err != nil {
				return nil, err
			}
		}
	}

	if identityOnlyTriggers[trigger] {
		return touched, nil
	}

	if trigger == "A40" {
		if err := pam.EvaluateA40(msg.MRG != nil); err != nil {
			metrics.RecordPAMTransitionRejection()
			return nil, err
		}
		// Only the presence of MRG is checked here; the MRG's prior
		// identifiers are neither recorded nor linked to the surviving
		// patient.
		return touched, nil
	}

	if !movementTriggers[trigger] && !correctionTriggers[trigger] && len(msg.Z99s) == 0 {
		return nil, hl7err.New(hl7err.KindSemantic, hl7err.CodeUnsupportedTrigger,
			"trigger is not a recognized ADT event", "trigger", trigger)
	}

	// Step 4: encounter phase.
	var file *domain.AdminFile
	var visit *domain.Visit

	if movementTriggers[trigger] {
		if patient == nil {
			return nil, hl7err.New(hl7err.KindSemantic, hl7err.CodeMissingPV1,
				"a movement trigger requires a resolved or created patient", "trigger", trigger)
		}

		var err error
		file, visit, err = h.resolveEncounter(ctx, store, patient, msg)
		if err != nil {
			return nil, err
		}

		zbe := msg.ZBE
		result, err := pam.Evaluate(pam.Input{
			CurrentState:      file.CurrentState,
			OperationalStatus: visit.OperationalStatus,
			Trigger:           trigger,
			PatientClass:      valueOr(msg.PV1, func(p *parser.PV1) string { return p.PatientClass }),
			ZBE:               zbe,
			HasMRG:            msg.MRG != nil,
			StrictMode:        h.strictGlobal,
		})
		if err != nil {
			metrics.RecordPAMTransitionRejection()
			return nil, err
		}

		// Step 5: movement phase.
		seq, err := store.Next(ctx, domain.SeqMovement)
		if err != nil {
			return nil, err
		}
		movementLocation := valueOr(msg.PV1, func(p *parser.PV1) string { return p.Location })
		h.checkLocation(ctx, movementLocation)
		movement := &domain.Movement{
			VisitID:      visit.ID,
			Sequence:     seq,
			Timestamp:    now(),
			TriggerEvent: trigger,
			Action:       zbeActionOrDefault(zbe),
			Location:     movementLocation,
		}
		if zbe != nil {
			movement.Nature = domain.MovementNature(zbe.Nature)
		}
		if target, ok := pam.CancelTargetFor(trigger); ok {
			prior, err := store.LatestMovementForVisit(ctx, visit.ID)
			if err != nil {
				return nil, err
			}
			if prior == nil || prior.TriggerEvent != target {
				return nil, hl7err.New(hl7err.KindSemantic, hl7err.CodeInvalidTransition,
					"no matching prior movement to cancel", "trigger", trigger, "expected_prior", target)
			}
			prior.Cancelled = true
			if err := store.UpdateMovement(ctx, prior); err != nil {
				return nil, err
			}
			movement.CancelledID = &prior.ID
		}
		if err := store.CreateMovement(ctx, movement); err != nil {
			return nil, err
		}
		if zbe != nil {
			if err := h.ensureIdentifier(ctx, store, zbe.MovementID, domain.OwnerMovement, movement.ID); err != nil {
				return nil, err
			}
		}
		if msg.PV1 != nil && msg.PV1.VisitNumber != nil {
			if err := h.ensureIdentifier(ctx, store, *msg.PV1.VisitNumber, domain.OwnerAdminFile, file.ID); err != nil {
				return nil, err
			}
		}

		applyUFUpdates(file, visit, zbe, trigger, msg.PV1)
		file.CurrentState = result.NewState
		if result.NewOperationalStatus != "" {
			visit.OperationalStatus = result.NewOperationalStatus
		}
		file.UpdatedAt = now()
		if err := store.UpdateAdminFile(ctx, file); err != nil {
			return nil, err
		}
		if err := store.UpdateVisit(ctx, visit); err != nil {
			return nil, err
		}

		touched = append(touched,
			domain.Touched{Kind: domain.OwnerAdminFile, ID: file.ID, Operation: "update", Trigger: trigger},
			domain.Touched{Kind: domain.OwnerVisit, ID: visit.ID, Operation: "update", Trigger: trigger},
			domain.Touched{Kind: domain.OwnerMovement, ID: movement.ID, Operation: "insert", Trigger: trigger},
		)
	}

	// ADT^Z99: a ZBE-9=C field-level correction (spec §4.5, §8 S4). Unlike
	// movementTriggers, this never reaches pam.Evaluate and never touches
	// file.CurrentState.
	if correctionTriggers[trigger] {
		if patient == nil {
			return nil, hl7err.New(hl7err.KindSemantic, hl7err.CodeMissingPV1,
				"a Z99 correction requires a resolved or created patient", "trigger", trigger)
		}
		zbe := msg.ZBE
		if zbe == nil {
			return nil, hl7err.New(hl7err.KindSemantic, hl7err.CodeInvalidCorrectionContext,
				"Z99 correction requires a ZBE segment")
		}

		var err error
		file, visit, err = h.resolveEncounter(ctx, store, patient, msg)
		if err != nil {
			return nil, err
		}
		if err := pam.EvaluateZ99Correction(zbe.OriginalTrigger, visit.OperationalStatus); err != nil {
			metrics.RecordPAMTransitionRejection()
			return nil, err
		}

		seq, err := store.Next(ctx, domain.SeqMovement)
		if err != nil {
			return nil, err
		}
		correctionLocation := valueOr(msg.PV1, func(p *parser.PV1) string { return p.Location })
		h.checkLocation(ctx, correctionLocation)
		if correctionLocation != "" {
			visit.Location = correctionLocation
		}
		movement := &domain.Movement{
			VisitID:      visit.ID,
			Sequence:     seq,
			Timestamp:    now(),
			TriggerEvent: trigger,
			Action:       domain.ActionUpdate,
			Nature:       domain.NatureCancellation,
			Location:     correctionLocation,
		}
		if err := store.CreateMovement(ctx, movement); err != nil {
			return nil, err
		}
		if err := h.ensureIdentifier(ctx, store, zbe.MovementID, domain.OwnerMovement, movement.ID); err != nil {
			return nil, err
		}
		if err := store.UpdateVisit(ctx, visit); err != nil {
			return nil, err
		}

		touched = append(touched,
			domain.Touched{Kind: domain.OwnerVisit, ID: visit.ID, Operation: "update", Trigger: trigger},
			domain.Touched{Kind: domain.OwnerMovement, ID: movement.ID, Operation: "insert", Trigger: trigger},
		)
	}

	// Step 6: Z99 inline updates.
	for _, z := range msg.Z99s {
		if err := h.applyZ99(ctx, store, z, file, visit); err != nil {
			return nil, err
		}
	}

	return touched, nil
}

func zbeActionOrDefault(zbe *parser.ZBE) domain.MovementAction {
	if zbe == nil {
		return domain.ActionInsert
	}
	switch zbe.Action {
	case parser.ZBEUpdate:
		return domain.ActionUpdate
	case parser.ZBECancel:
		return domain.ActionCancel
	default:
		return domain.ActionInsert
	}
}

func valueOr(pv1 *parser.PV1, f func(*parser.PV1) string) string {
	if pv1 == nil {
		return ""
	}
	return f(pv1)
}

// ensureIdentifier attaches an incoming CX identifier to owner if no
// active identifier already records it (spec §3 I1/I6).
func (h *Handler) ensureIdentifier(ctx context.Context, store domain.Store, cx parser.CX, owner domain.OwnerKind, ownerID types.ID) error {
	if cx.Value == "" {
		return nil
	}
	ns, err := h.resolver.ResolveNamespace(ctx, store, cx)
	if err != nil {
		return err
	}
	existing, err := store.FindIdentifier(ctx, ns.ID, cx.Value, owner)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return store.CreateIdentifier(ctx, &domain.Identifier{
		Value: cx.Value, NamespaceID: ns.ID, OwnerKind: owner, OwnerID: ownerID,
	})
}

// resolveEncounter implements spec §4.6 step 4: resolve-or-create the
// AdminFile by NDA or (patient, admit_time), and resolve-or-create the
// Visit.
func (h *Handler) resolveEncounter(ctx context.Context, store domain.Store, patient *domain.Patient, msg *parser.Message) (*domain.AdminFile, *domain.Visit, error) {
	var file *domain.AdminFile
	var err error

	if msg.PV1 != nil && msg.PV1.VisitNumber != nil && msg.PV1.VisitNumber.Value != "" {
		// The NDA is matched inside its own namespace, so a payload rescoped
		// by Reimport never resolves to another scope's file.
		ns, err := h.resolver.ResolveNamespace(ctx, store, *msg.PV1.VisitNumber)
		if err != nil {
			return nil, nil, err
		}
		id, err := store.FindIdentifier(ctx, ns.ID, msg.PV1.VisitNumber.Value, domain.OwnerAdminFile)
		if err != nil {
			return nil, nil, err
		}
		if id != nil {
			file = &domain.AdminFile{ID: id.OwnerID}
		}
	}
	if file == nil && msg.PV1 != nil && msg.PV1.AdmitTime != nil {
		file, err = store.FindAdminFileByPatientAndAdmitTime(ctx, patient.ID, *msg.PV1.AdmitTime)
		if err != nil {
			return nil, nil, err
		}
	}
	if file != nil {
		file, err = store.GetAdminFileForUpdate(ctx, file.ID)
		if err != nil {
			return nil, nil, err
		}
	}
	if file == nil {
		file = &domain.AdminFile{
			PatientID:     patient.ID,
			AdmissionType: admissionTypeForClass(valueOr(msg.PV1, func(p *parser.PV1) string { return p.PatientClass })),
			CreatedAt:     now(),
			UpdatedAt:     now(),
		}
		if msg.PV1 != nil && msg.PV1.AdmitTime != nil {
			file.AdmitTime = *msg.PV1.AdmitTime
		} else {
			file.AdmitTime = now()
		}
		if err := store.CreateAdminFile(ctx, file); err != nil {
			return nil, nil, err
		}
	}

	visit, err := store.LatestVisitForFile(ctx, file.ID)
	if err != nil {
		return nil, nil, err
	}
	if visit == nil {
		visit = &domain.Visit{
			AdminFileID:       file.ID,
			StartTime:         now(),
			Location:          valueOr(msg.PV1, func(p *parser.PV1) string { return p.Location }),
			OperationalStatus: domain.VisitPlanned,
		}
		if err := store.CreateVisit(ctx, visit); err != nil {
			return nil, nil, err
		}
	}

	return file, visit, nil
}

func admissionTypeForClass(class string) domain.AdmissionType {
	switch class {
	case "I", "R":
		return domain.AdmissionHospitalized
	case "E":
		return domain.AdmissionEmergency
	default:
		return domain.AdmissionOutpatient
	}
}

// applyUFUpdates enforces spec §4.3's responsibility-code table.
func applyUFUpdates(file *domain.AdminFile, visit *domain.Visit, zbe *parser.ZBE, trigger string, pv1 *parser.PV1) {
	if zbe == nil {
		return
	}
	switch domain.MovementNature(zbe.Nature) {
	case domain.NatureMedical:
		file.UFMedical = zbe.ResponsibilityUF
		visit.UFMedical = zbe.ResponsibilityUF
	case domain.NatureHousing:
		if pv1 != nil {
			uf := firstComponent(pv1.Location)
			file.UFHousing = uf
			visit.UFHousing = uf
		}
	case domain.NatureCare:
		file.UFCare = zbe.ResponsibilityUF
		visit.UFCare = zbe.ResponsibilityUF
	}

	switch trigger {
	case "A01":
		file.UFMedical = zbe.ResponsibilityUF
		visit.UFMedical = zbe.ResponsibilityUF
		if pv1 != nil {
			uf := firstComponent(pv1.Location)
			file.UFHousing = uf
			visit.UFHousing = uf
		}
	case "A04":
		file.UFMedical = zbe.ResponsibilityUF
		visit.UFMedical = zbe.ResponsibilityUF
	}
}

func firstComponent(location string) string {
	for i, r := range location {
		if r == '^' {
			return location[:i]
		}
	}
	return location
}

func newPatientFromPID(pid *parser.PID) *domain.Patient {
	p := &domain.Patient{
		ID:                   types.NewID(),
		BirthDate:            pid.BirthDate,
		AdministrativeGender: pid.AdministrativeGender,
		SSN:                  pid.SSN,
		MothersMaidenName:    pid.MothersMaidenName,
		BirthPlace:           pid.BirthPlace,
		MaritalStatus:        pid.MaritalStatus,
		Reliability:          domain.IdentityReliability(pid.IdentityReliability),
		CreatedAt:            now(),
		UpdatedAt:            now(),
	}
	mergePatientFromPID(p, pid)
	return p
}

// mergePatientFromPID implements the additive merge of spec §4.6 step 3:
// incoming values of a given kind replace existing ones of that kind;
// missing values never erase existing entries of other kinds.
func mergePatientFromPID(p *domain.Patient, pid *parser.PID) {
	for _, n := range pid.Names {
		kind := domain.NameUsual
		if n.Type == "L" {
			kind = domain.NameBirth
		}
		p.Names = replaceByKind(p.Names, domain.PersonName{
			Family: n.Family, Given: n.Given, Middle: n.Middle, Suffix: n.Suffix, Prefix: n.Prefix, Kind: kind,
		})
	}
	for _, a := range pid.Addresses {
		kind := domain.AddressHome
		if a.Type == "BDL" {
			kind = domain.AddressBirth
		}
		p.Addresses = replaceAddrByKind(p.Addresses, domain.PersonAddress{
			Street: a.Street, Other: a.Other, City: a.City, State: a.State, Zip: a.Zip, Country: a.Country, Kind: kind,
		})
	}
	for _, ph := range pid.Phones {
		kind := domain.PhoneHome
		switch ph.Use {
		case "CP":
			kind = domain.PhoneMobile
		case "WP":
			kind = domain.PhoneWork
		}
		p.Phones = replacePhoneByKind(p.Phones, domain.PersonPhone{Value: ph.Value, Equipment: ph.Equipment, Kind: kind})
	}
	if pid.BirthDate != nil {
		p.BirthDate = pid.BirthDate
	}
	if pid.AdministrativeGender != "" {
		p.AdministrativeGender = pid.AdministrativeGender
	}
	if pid.SSN != "" {
		p.SSN = pid.SSN
	}
	if pid.MaritalStatus != "" {
		p.MaritalStatus = pid.MaritalStatus
	}
	if pid.BirthPlace != "" {
		p.BirthPlace = pid.BirthPlace
	}
}

func replaceByKind(names []domain.PersonName, n domain.PersonName) []domain.PersonName {
	for i, existing := range names {
		if existing.Kind == n.Kind {
			names[i] = n
			return names
		}
	}
	return append(names, n)
}

func replaceAddrByKind(addrs []domain.PersonAddress, a domain.PersonAddress) []domain.PersonAddress {
	for i, existing := range addrs {
		if existing.Kind == a.Kind {
			addrs[i] = a
			return addrs
		}
	}
	return append(addrs, a)
}

func replacePhoneByKind(phones []domain.PersonPhone, ph domain.PersonPhone) []domain.PersonPhone {
	for i, existing := range phones {
		if existing.Kind == ph.Kind {
			phones[i] = ph
			return phones
		}
	}
	return append(phones, ph)
}

// applyZ99 implements spec §4.6 step 6, restricted to Z99AllowList.
func (h *Handler) applyZ99(ctx context.Context, store domain.Store, z parser.Z99Update, file *domain.AdminFile, visit *domain.Visit) error {
	allowed, ok := Z99AllowList[z.Entity]
	if !ok || !allowed[z.Field] {
		return hl7err.New(hl7err.KindSemantic, hl7err.CodeInvalidZ99Target,
			"Z99 field is not on the allow-list", "entity", z.Entity, "field", z.Field)
	}

	switch z.Entity {
	case "AdminFile":
		if file == nil {
			return hl7err.New(hl7err.KindSemantic, hl7err.CodeInvalidZ99Target, "no AdminFile in scope for Z99 update")
		}
		switch z.Field {
		case "uf_medical":
			file.UFMedical = z.Value
		case "uf_housing":
			file.UFHousing = z.Value
		case "uf_care":
			file.UFCare = z.Value
		}
		return store.UpdateAdminFile(ctx, file)
	case "Visit":
		if visit == nil {
			return hl7err.New(hl7err.KindSemantic, hl7err.CodeInvalidZ99Target, "no Visit in scope for Z99 update")
		}
		switch z.Field {
		case "location":
			h.checkLocation(ctx, z.Value)
			visit.Location = z.Value
		case "operational_status":
			visit.OperationalStatus = domain.OperationalStatus(z.Value)
		}
		return store.UpdateVisit(ctx, visit)
	case "Movement":
		if visit == nil {
			return hl7err.New(hl7err.KindSemantic, hl7err.CodeInvalidZ99Target, "no Visit in scope for Z99 movement update")
		}
		seq, err := strconv.ParseInt(z.Seq, 10, 64)
		if err != nil {
			return hl7err.Wrap(hl7err.KindParse, hl7err.CodeInvalidZ99Target, "Z99-2 movement sequence is not an integer", err, "value", z.Seq)
		}
		m, err := store.FindMovementByVisitAndSequence(ctx, visit.ID, seq)
		if err != nil {
			return err
		}
		if m == nil {
			return hl7err.New(hl7err.KindSemantic, hl7err.CodeInvalidZ99Target, "no movement at that sequence in this visit", "sequence", z.Seq)
		}
		if z.Field == "location" {
			h.checkLocation(ctx, z.Value)
			m.Location = z.Value
		}
		return store.UpdateMovement(ctx, m)
	}
	return nil
}

func now() time.Time { return time.Now().UTC() }
