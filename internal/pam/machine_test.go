package pam

import (
	"testing"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/hl7/parser"
	"github.com/serbia-gov/platform/internal/hl7err"
)

func insertZBE() *parser.ZBE {
	return &parser.ZBE{Action: parser.ZBEInsert}
}

// TestScenarioAdmissionTransferDischarge follows spec §8 scenario S1.
func TestScenarioAdmissionTransferDischarge(t *testing.T) {
	res, err := Evaluate(Input{CurrentState: "", Trigger: "A01", PatientClass: "I", ZBE: insertZBE()})
	if err != nil {
		t.Fatalf("A01: %v", err)
	}
	if res.NewState != "A01" || res.NewOperationalStatus != domain.VisitActive {
		t.Fatalf("unexpected A01 result: %+v", res)
	}

	res, err = Evaluate(Input{CurrentState: "A01", Trigger: "A02", PatientClass: "I", ZBE: insertZBE()})
	if err != nil {
		t.Fatalf("A02: %v", err)
	}
	if res.NewState != "A02" {
		t.Fatalf("unexpected A02 result: %+v", res)
	}

	res, err = Evaluate(Input{CurrentState: "A02", Trigger: "A03", PatientClass: "I", ZBE: insertZBE()})
	if err != nil {
		t.Fatalf("A03: %v", err)
	}
	if res.NewState != "A03" || res.NewOperationalStatus != domain.VisitFinished {
		t.Fatalf("unexpected A03 result: %+v", res)
	}
}

// TestScenarioInvalidA22WithoutPriorA21 follows spec §8 scenario S2.
func TestScenarioInvalidA22WithoutPriorA21(t *testing.T) {
	_, err := Evaluate(Input{CurrentState: "A03", Trigger: "A22", PatientClass: "I", ZBE: insertZBE()})
	ge, ok := hl7err.As(err)
	if !ok {
		t.Fatalf("expected *GatewayError, got %v", err)
	}
	if ge.Code != hl7err.CodeInvalidTransition {
		t.Errorf("expected InvalidTransition, got %s", ge.Code)
	}
}

// TestScenarioStrictModeA08Blocked follows spec §8 scenario S3.
func TestScenarioStrictModeA08Blocked(t *testing.T) {
	_, err := Evaluate(Input{CurrentState: "A01", Trigger: "A08", PatientClass: "I", ZBE: insertZBE(), StrictMode: true})
	ge, ok := hl7err.As(err)
	if !ok {
		t.Fatalf("expected *GatewayError, got %v", err)
	}
	if ge.Code != hl7err.CodeStrictModeBlocked {
		t.Errorf("expected StrictModeBlocked, got %s", ge.Code)
	}
}

func TestA08RejectsTerminalState(t *testing.T) {
	_, err := Evaluate(Input{CurrentState: "A11", Trigger: "A08", ZBE: insertZBE()})
	ge, ok := hl7err.As(err)
	if !ok || ge.Code != hl7err.CodeInvalidTransition {
		t.Fatalf("expected InvalidTransition for A08 from terminal state, got %v", err)
	}
}

func TestUnsupportedTrigger(t *testing.T) {
	_, err := Evaluate(Input{Trigger: "A99"})
	ge, ok := hl7err.As(err)
	if !ok || ge.Code != hl7err.CodeUnsupportedTrigger {
		t.Fatalf("expected UnsupportedTrigger, got %v", err)
	}
}

func TestA06RequiresClassChangeToI(t *testing.T) {
	_, err := Evaluate(Input{CurrentState: "A04", Trigger: "A06", PatientClass: "O", ZBE: insertZBE()})
	ge, ok := hl7err.As(err)
	if !ok || ge.Code != hl7err.CodeInvalidClassChange {
		t.Fatalf("expected InvalidClassChange, got %v", err)
	}
}

// TestScenarioZ99CancellationCorrection follows spec §8 scenario S4.
func TestScenarioZ99CancellationCorrection(t *testing.T) {
	if err := EvaluateZ99Correction("A01", domain.VisitActive); err != nil {
		t.Errorf("expected valid correction window, got %v", err)
	}
	err := EvaluateZ99Correction("A03", domain.VisitFinished)
	ge, ok := hl7err.As(err)
	if !ok || ge.Code != hl7err.CodeInvalidCorrectionContext {
		t.Fatalf("expected InvalidCorrectionContext, got %v", err)
	}
}

func TestEvaluateA40RequiresMRG(t *testing.T) {
	if err := EvaluateA40(true); err != nil {
		t.Errorf("expected no error with MRG present, got %v", err)
	}
	ge, ok := hl7err.As(EvaluateA40(false))
	if !ok || ge.Code != hl7err.CodeMissingMRG {
		t.Fatalf("expected MissingMRG, got %v", EvaluateA40(false))
	}
}

func TestCancelTargetFor(t *testing.T) {
	target, ok := CancelTargetFor("A11")
	if !ok || target != "A01" {
		t.Errorf("expected A11 to cancel A01, got %q ok=%v", target, ok)
	}
	if _, ok := CancelTargetFor("A99"); ok {
		t.Error("expected A99 to not be a recognized cancellation trigger")
	}
}

func TestValidateAdmissionTypeChangeRejectsIncompatibleHistory(t *testing.T) {
	history := []*domain.Movement{{TriggerEvent: "A04"}}
	err := ValidateAdmissionTypeChange(domain.AdmissionEmergency, domain.AdmissionHospitalized, history)
	if err == nil {
		t.Fatal("expected error: A04 movement incompatible with HOSPITALIZED")
	}
}

func TestValidateAdmissionTypeChangeAllowsCompatibleHistory(t *testing.T) {
	history := []*domain.Movement{{TriggerEvent: "A01"}, {TriggerEvent: "A02"}}
	err := ValidateAdmissionTypeChange(domain.AdmissionEmergency, domain.AdmissionHospitalized, history)
	if err != nil {
		t.Errorf("expected compatible history to validate, got %v", err)
	}
}

func TestValidateAdmissionTypeChangeRejectsUnlistedTransition(t *testing.T) {
	err := ValidateAdmissionTypeChange(domain.AdmissionHospitalized, domain.AdmissionEmergency, nil)
	if err == nil {
		t.Fatal("expected transition HOSPITALIZED->EMERGENCY to be rejected")
	}
}
