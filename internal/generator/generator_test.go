package generator

import (
	"testing"
	"time"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/hl7/parser"
	"github.com/serbia-gov/platform/internal/hl7err"
)

func sampleEntities() Entities {
	birth := time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	return Entities{
		Patient: &domain.Patient{
			Names:                []domain.PersonName{{Family: "DOE", Given: "JOHN", Kind: domain.NameUsual}},
			BirthDate:            &birth,
			AdministrativeGender: "M",
			Reliability:          domain.ReliabilityValidated,
		},
		AdminFile: &domain.AdminFile{AdmissionType: domain.AdmissionHospitalized, AdmitTime: birth},
		Visit:     &domain.Visit{Location: "SERVICE_A", UFMedical: "UF01"},
		Movement: &domain.Movement{
			Sequence: 1, Timestamp: birth, TriggerEvent: "A01",
			Nature: domain.NatureMedical, Action: domain.ActionInsert,
		},
		Identifiers:          []IdentifierView{{Value: "12345", AuthorityName: "HOSP", AuthorityOID: "1.2.3.4", Type: "PI"}},
		AdminFileIdentifiers: []IdentifierView{{Value: "NDA001", AuthorityName: "HOSP", AuthorityOID: "1.2.250.1.71.4.2.2", Type: "PI"}},
		MovementIdentifiers:  []IdentifierView{{Value: "1", AuthorityName: "MOVT", AuthorityOID: "1.2.250.1.213.1.1.1.4"}},
	}
}

func targetNonStrict() Target {
	return Target{SendingApp: "GAM", SendingFacility: "900000001", ReceivingApp: "GAM", ReceivingFacility: "900000001"}
}

func TestGenerateAdmissionRoundTripsThroughParser(t *testing.T) {
	framed, controlID, err := Generate("A01", sampleEntities(), targetNonStrict(), time.Now())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if controlID == "" {
		t.Fatal("expected a non-empty control id")
	}

	payload := framed[1 : len(framed)-2] // strip SB .. EB CR
	msg, err := parser.Parse(payload)
	if err != nil {
		t.Fatalf("reparse generated message: %v", err)
	}
	if msg.MSH.Trigger != "A01" {
		t.Errorf("unexpected trigger: %s", msg.MSH.Trigger)
	}
	if msg.PID == nil || len(msg.PID.Names) != 1 || msg.PID.Names[0].Family != "DOE" {
		t.Fatalf("unexpected PID: %+v", msg.PID)
	}
	if msg.PID.Identifiers[0].Value != "12345" {
		t.Errorf("unexpected identifier: %+v", msg.PID.Identifiers)
	}
	if msg.PV1 == nil || msg.PV1.PatientClass != "I" || msg.PV1.Location != "SERVICE_A" {
		t.Fatalf("unexpected PV1: %+v", msg.PV1)
	}
	if msg.PV1.VisitNumber == nil || msg.PV1.VisitNumber.Value != "NDA001" || msg.PV1.VisitNumber.AuthorityOID != "1.2.250.1.71.4.2.2" {
		t.Fatalf("unexpected PV1-19 NDA: %+v", msg.PV1.VisitNumber)
	}
	if msg.ZBE == nil || msg.ZBE.Action != parser.ZBEInsert {
		t.Fatalf("unexpected ZBE: %+v", msg.ZBE)
	}
	if msg.ZBE.MovementID.AuthorityName != "MOVT" || msg.ZBE.MovementID.AuthorityOID != "1.2.250.1.213.1.1.1.4" {
		t.Fatalf("unexpected ZBE-1 authority: %+v", msg.ZBE.MovementID)
	}
}

func TestGenerateRejectsA08UnderStrictMode(t *testing.T) {
	_, _, err := Generate("A08", sampleEntities(), Target{GlobalStrict: true}, time.Now())
	ge, ok := hl7err.As(err)
	if !ok || ge.Code != hl7err.CodeStrictModeBlocked {
		t.Fatalf("expected StrictModeBlocked, got %v", err)
	}
}

func TestGenerateRejectsA40WithoutMerge(t *testing.T) {
	_, _, err := Generate("A40", sampleEntities(), targetNonStrict(), time.Now())
	ge, ok := hl7err.As(err)
	if !ok || ge.Code != hl7err.CodeMergeSegmentMissing {
		t.Fatalf("expected MergeSegmentMissing, got %v", err)
	}
}

func TestGenerateA40IncludesMRG(t *testing.T) {
	ent := sampleEntities()
	ent.MergedInto = "99999"
	framed, _, err := Generate("A40", ent, targetNonStrict(), time.Now())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	payload := framed[1 : len(framed)-2]
	msg, err := parser.Parse(payload)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if msg.MRG == nil || len(msg.MRG.PriorPatientIDs) != 1 || msg.MRG.PriorPatientIDs[0].Value != "99999" {
		t.Fatalf("unexpected MRG: %+v", msg.MRG)
	}
}
