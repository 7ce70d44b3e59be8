// Package generator builds outbound HL7 v2.5 messages from domain
// entities (spec §4.7).
package generator

import (
	"fmt"
	"time"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/hl7/wire"
	"github.com/serbia-gov/platform/internal/hl7err"
)

// Target carries the subscriber-facing identity fields and strict-mode
// precedence inputs the generator needs (spec §4.7, SPEC_FULL.md supplement
// #4 — strict mode can come from the subscriber's legal entity OR global
// configuration; either blocks A08).
type Target struct {
	SendingApp        string
	SendingFacility   string
	ReceivingApp      string
	ReceivingFacility string
	LegalEntityStrict bool
	GlobalStrict      bool
}

func (t Target) strictMode() bool {
	return t.LegalEntityStrict || t.GlobalStrict
}

// Entities bundles the domain objects needed to render one message; not
// every field is populated for every trigger.
type Entities struct {
	Patient   *domain.Patient
	AdminFile *domain.AdminFile
	Visit     *domain.Visit
	Movement  *domain.Movement
	// Identifiers is the Patient's resolved identifier list with joined
	// namespace authority fields, since domain.Identifier alone only
	// carries a namespace id.
	Identifiers []IdentifierView
	// AdminFileIdentifiers is the AdminFile's own identifier list (its NDA),
	// rendered into PV1-19.
	AdminFileIdentifiers []IdentifierView
	// MovementIdentifiers is the Movement's own identifier list, rendered
	// into ZBE-1's authority components.
	MovementIdentifiers []IdentifierView
	MergedInto          string // prior patient id, for A40
}

// IdentifierView flattens an Identifier with its Namespace for rendering.
type IdentifierView struct {
	Value         string
	AuthorityName string
	AuthorityOID  string
	Type          string
}

const enc = "^~\\&"

// Generate builds a single framed HL7 message for trigger, now used as the
// MSH-7 timestamp and to derive the MSH-10 control ID (ZBE-2 carries the
// movement's own timestamp). It also returns the MSH-10 control ID it assigned,
// so callers (the emission engine's message log) can correlate the
// generated frame with its fate without re-parsing it.
func Generate(trigger string, ent Entities, target Target, now time.Time) ([]byte, string, error) {
	if trigger == "A08" && target.strictMode() {
		return nil, "", hl7err.New(hl7err.KindSemantic, hl7err.CodeStrictModeBlocked,
			"A08 generation is blocked under strict PAM-FR mode")
	}
	if (trigger == "A40" || trigger == "A47") && ent.MergedInto == "" {
		return nil, "", hl7err.New(hl7err.KindSemantic, hl7err.CodeMergeSegmentMissing,
			"A40/A47 generation requires a merge target", "trigger", trigger)
	}

	controlID := fmt.Sprintf("MSG%s", now.UTC().Format("20060102150405"))

	var segs []string
	segs = append(segs, buildMSH(trigger, target, now, controlID))
	if ent.PatientRequired() {
		segs = append(segs, buildPID(ent))
	}
	if ent.Visit != nil || ent.AdminFile != nil {
		segs = append(segs, buildPV1(ent))
	}
	if ent.Movement != nil {
		segs = append(segs, buildZBE(ent, now))
	}
	if trigger == "A40" || trigger == "A47" {
		segs = append(segs, buildMRG(ent))
	}

	payload := joinSegments(segs)
	return wire.Frame([]byte(payload)), controlID, nil
}

// PatientRequired reports whether the entities carry enough demographic
// data to emit a PID segment.
func (e Entities) PatientRequired() bool {
	return e.Patient != nil
}

func joinSegments(segs []string) string {
	out := ""
	for i, s := range segs {
		if i > 0 {
			out += string(rune(0x0D))
		}
		out += s
	}
	return out
}

func buildMSH(trigger string, target Target, now time.Time, controlID string) string {
	return fmt.Sprintf("MSH|%s|%s|%s|%s|%s|%s||ADT^%s^ADT_A01|%s|P|2.5",
		enc, target.SendingApp, target.SendingFacility,
		target.ReceivingApp, target.ReceivingFacility,
		now.UTC().Format("20060102150405"), trigger, controlID)
}

// identifierCX renders an identifier as a CX composite:
// value^^^authority_name&authority_oid&ISO^type_code (spec §4.7 PID-3, reused
// for PV1-19 and ZBE-1).
func identifierCX(idv IdentifierView) string {
	return fmt.Sprintf("%s^^^%s&%s&ISO^%s", idv.Value, idv.AuthorityName, idv.AuthorityOID, idv.Type)
}

func buildPID(ent Entities) string {
	p := ent.Patient
	var ids []string
	for _, idv := range ent.Identifiers {
		ids = append(ids, identifierCX(idv))
	}
	field3 := joinRepetitions(ids)

	var names []string
	for _, n := range p.Names {
		typeCode := "D"
		if n.Kind == domain.NameBirth {
			typeCode = "L"
		}
		names = append(names, fmt.Sprintf("%s^%s^%s^%s^%s^^%s",
			n.Family, n.Given, n.Middle, n.Suffix, n.Prefix, typeCode))
	}
	field5 := joinRepetitions(names)

	birthDate := ""
	if p.BirthDate != nil {
		birthDate = p.BirthDate.Format("20060102")
	}

	var addrs []string
	for _, a := range p.Addresses {
		typeCode := "H"
		if a.Kind == domain.AddressBirth {
			typeCode = "BDL"
		}
		addrs = append(addrs, fmt.Sprintf("%s^%s^%s^%s^%s^%s^%s",
			a.Street, a.Other, a.City, a.State, a.Zip, a.Country, typeCode))
	}
	field11 := joinRepetitions(addrs)

	var phones []string
	for _, ph := range p.Phones {
		switch ph.Kind {
		case domain.PhoneMobile:
			phones = append(phones, ph.Value+"^CP^CELL")
		case domain.PhoneWork:
			phones = append(phones, ph.Value+"^WP^WORK")
		default:
			phones = append(phones, ph.Value)
		}
	}
	field13 := joinRepetitions(phones)

	fields := make([]string, 33)
	fields[1] = "1"
	fields[3] = field3
	fields[5] = field5
	fields[7] = birthDate
	fields[8] = p.AdministrativeGender
	fields[11] = field11
	fields[13] = field13
	fields[19] = p.SSN
	fields[16] = p.MaritalStatus
	fields[6] = p.MothersMaidenName
	fields[23] = p.BirthPlace
	fields[32] = string(p.Reliability)

	out := "PID"
	for i := 1; i <= 32; i++ {
		out += "|" + fields[i]
	}
	return out
}

func joinRepetitions(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += "~"
		}
		out += s
	}
	return out
}

func buildPV1(ent Entities) string {
	class := ""
	nda := ""
	if len(ent.AdminFileIdentifiers) > 0 {
		nda = identifierCX(ent.AdminFileIdentifiers[0])
	}
	var admit, discharge time.Time
	location := ""
	if ent.AdminFile != nil {
		switch ent.AdminFile.AdmissionType {
		case domain.AdmissionHospitalized:
			class = "I"
		case domain.AdmissionOutpatient:
			class = "O"
		case domain.AdmissionEmergency:
			class = "E"
		}
		admit = ent.AdminFile.AdmitTime
		if ent.AdminFile.DischargeTime != nil {
			discharge = *ent.AdminFile.DischargeTime
		}
	}
	if ent.Visit != nil {
		location = ent.Visit.Location
	}

	admitStr, dischargeStr := "", ""
	if !admit.IsZero() {
		admitStr = admit.UTC().Format("20060102150405")
	}
	if !discharge.IsZero() {
		dischargeStr = discharge.UTC().Format("20060102150405")
	}

	fields := make([]string, 46)
	fields[2] = class
	fields[3] = location
	fields[19] = nda
	fields[44] = admitStr
	fields[45] = dischargeStr
	return "PV1|1" + buildTrailingFields(fields)
}

func buildTrailingFields(fields []string) string {
	out := ""
	for i := 2; i <= 45; i++ {
		out += "|" + fields[i]
	}
	return out
}

func buildZBE(ent Entities, now time.Time) string {
	m := ent.Movement
	var uf string
	if ent.Visit != nil {
		switch m.Nature {
		case domain.NatureMedical, domain.NatureCare:
			uf = ent.Visit.UFMedical
		case domain.NatureHousing:
			uf = ent.Visit.UFHousing
		}
	}
	originalTrigger := ""
	cancelFlag := "N"
	if m.Action == domain.ActionCancel {
		cancelFlag = "Y"
		originalTrigger = m.TriggerEvent
	}
	processingMode := string(m.Nature)
	if processingMode == "" {
		processingMode = "HMS"
	}
	movementID := fmt.Sprintf("%d^^^ISO", m.Sequence)
	if len(ent.MovementIdentifiers) > 0 {
		idv := ent.MovementIdentifiers[0]
		movementID = fmt.Sprintf("%d^%s^%s^ISO", m.Sequence, idv.AuthorityName, idv.AuthorityOID)
	}
	return fmt.Sprintf("ZBE|%s|%s||%s|%s|%s|^^^^^^UF^^^%s||%s",
		movementID, m.Timestamp.UTC().Format("20060102150405"),
		string(m.Action), cancelFlag, originalTrigger, uf, processingMode)
}

func buildMRG(ent Entities) string {
	return fmt.Sprintf("MRG|%s", ent.MergedInto)
}
