// Package pam implements the ADT^Axx trigger/transition table of spec
// §4.5 as a pure function of (current_state, operational_status, incoming
// trigger, patient class, ZBE fields).
package pam

import (
	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/hl7/parser"
	"github.com/serbia-gov/platform/internal/hl7err"
)

// Input is everything the machine needs to evaluate one transition.
type Input struct {
	CurrentState      string // the AdminFile's current_state, "" for an empty file
	OperationalStatus domain.OperationalStatus
	Trigger           string // e.g. "A01"
	PatientClass      string // PV1-2: I, O, E, R, ...
	ZBE               *parser.ZBE
	HasMRG            bool
	StrictMode        bool
}

// Result is the outcome of a successful transition.
type Result struct {
	NewState               string
	NewOperationalStatus   domain.OperationalStatus
	RequiresCancelledLookup bool // Z99/C-nature: caller must locate the prior movement to cancel
}

type rule struct {
	allowedPriorStates map[string]bool
	anyPriorState      bool
	allowedClasses      map[string]bool
	anyClass            bool
	requireZBE          bool
	requireZBEAction    parser.ZBEAction
	resultState         string
	resultStatus        domain.OperationalStatus
}

func stateSet(states ...string) map[string]bool {
	m := make(map[string]bool, len(states))
	for _, s := range states {
		m[s] = true
	}
	return m
}

var rules = map[string]rule{
	"A01": {
		allowedPriorStates: stateSet("", "A03", "A11"),
		allowedClasses:     stateSet("I", "R"),
		requireZBE:         true,
		requireZBEAction:   parser.ZBEInsert,
		resultState:        "A01",
		resultStatus:       domain.VisitActive,
	},
	"A02": {
		allowedPriorStates: stateSet("A01", "A02", "A06", "A07", "A22"),
		allowedClasses:     stateSet("I", "R"),
		requireZBE:         true,
		resultState:        "A02",
		resultStatus:       domain.VisitActive,
	},
	"A03": {
		allowedPriorStates: stateSet("A01", "A02", "A06", "A07", "A22"),
		allowedClasses:     stateSet("I", "R"),
		requireZBE:         true,
		resultState:        "A03",
		resultStatus:       domain.VisitFinished,
	},
	"A04": {
		allowedPriorStates: stateSet("", "A03", "A05"),
		allowedClasses:     stateSet("O", "E"),
		requireZBE:         true,
		resultState:        "A04",
		resultStatus:       domain.VisitActive,
	},
	"A05": {
		allowedPriorStates: stateSet("", "A03"),
		anyClass:           true,
		requireZBE:         true,
		resultState:        "A05",
		resultStatus:       domain.VisitPlanned,
	},
	"A06": {
		allowedPriorStates: stateSet("A04"),
		allowedClasses:     stateSet("I"),
		requireZBE:         true,
		requireZBEAction:   parser.ZBEInsert,
		resultState:        "A06",
		resultStatus:       domain.VisitActive,
	},
	"A07": {
		allowedPriorStates: stateSet("A01"),
		allowedClasses:     stateSet("O"),
		requireZBE:         true,
		requireZBEAction:   parser.ZBEInsert,
		resultState:        "A07",
		resultStatus:       domain.VisitActive,
	},
	"A08": {
		anyPriorState: true, // non-terminal checked separately
		anyClass:      true,
		requireZBE:    true,
		resultStatus:  "", // A08 does not change operational_status
	},
	"A11": {
		allowedPriorStates: stateSet("A01"),
		anyClass:           true,
		requireZBE:         true,
		requireZBEAction:   parser.ZBECancel,
		resultState:        "A11",
		resultStatus:       domain.VisitCancelled,
	},
	"A12": {
		allowedPriorStates: stateSet("A02"),
		anyClass:           true,
		requireZBE:         true,
		requireZBEAction:   parser.ZBECancel,
		resultState:        "A12",
		resultStatus:       domain.VisitCancelled,
	},
	"A13": {
		allowedPriorStates: stateSet("A03"),
		anyClass:           true,
		requireZBE:         true,
		requireZBEAction:   parser.ZBECancel,
		resultState:        "A13",
		resultStatus:       domain.VisitCancelled,
	},
	"A21": {
		allowedPriorStates: stateSet("A01", "A02"),
		allowedClasses:     stateSet("I", "R"),
		requireZBE:         true,
		resultState:        "A21",
		resultStatus:       domain.VisitSuspended,
	},
	"A22": {
		allowedPriorStates: stateSet("A21"),
		allowedClasses:     stateSet("I", "R"),
		requireZBE:         true,
		resultState:        "A22",
		resultStatus:       domain.VisitActive,
	},
	"A28": {
		anyPriorState: true,
		anyClass:      true,
		requireZBE:    false,
	},
	"A31": {
		anyPriorState: true,
		anyClass:      true,
		requireZBE:    false,
	},
}

// terminalStates are current_state values a file cannot leave via A08
// ("any non-terminal" per spec §4.5).
var terminalStates = stateSet("A11", "A12", "A13")

// cancelTargets maps a cancellation trigger to the trigger it cancels (I5).
var cancelTargets = map[string]string{
	"A11": "A01",
	"A12": "A02",
	"A13": "A03",
}

// Evaluate applies the transition rule for in.Trigger. A40 (merge) and Z99
// are handled by dedicated functions below; this covers the
// encounter-lifecycle triggers A01-A22 and the identity-only triggers
// A28/A31, which the rule table accepts from any state without a ZBE.
func Evaluate(in Input) (*Result, error) {
	r, ok := rules[in.Trigger]
	if !ok {
		return nil, hl7err.New(hl7err.KindSemantic, hl7err.CodeUnsupportedTrigger,
			"trigger is not a recognized ADT event", "trigger", in.Trigger)
	}

	if in.Trigger == "A08" {
		return evaluateA08(in)
	}

	if !r.anyPriorState {
		if !r.allowedPriorStates[in.CurrentState] {
			return nil, hl7err.New(hl7err.KindSemantic, hl7err.CodeInvalidTransition,
				"trigger not allowed from current state", "trigger", in.Trigger, "current_state", in.CurrentState)
		}
	}

	if !r.anyClass {
		if !r.allowedClasses[in.PatientClass] {
			code := hl7err.CodeInvalidTransition
			if in.Trigger == "A06" || in.Trigger == "A07" {
				code = hl7err.CodeInvalidClassChange
			}
			return nil, hl7err.New(hl7err.KindSemantic, code,
				"patient class not compatible with trigger", "trigger", in.Trigger, "class", in.PatientClass)
		}
	}

	if r.requireZBE {
		if in.ZBE == nil {
			return nil, hl7err.New(hl7err.KindSemantic, hl7err.CodeMissingZBE,
				"trigger requires a ZBE segment", "trigger", in.Trigger)
		}
		if r.requireZBEAction != "" && in.ZBE.Action != r.requireZBEAction {
			return nil, hl7err.New(hl7err.KindSemantic, hl7err.CodeInvalidTransition,
				"ZBE-4 action does not match what this trigger requires",
				"trigger", in.Trigger, "expected", string(r.requireZBEAction), "got", string(in.ZBE.Action))
		}
	}

	return &Result{NewState: r.resultState, NewOperationalStatus: r.resultStatus}, nil
}

func evaluateA08(in Input) (*Result, error) {
	if terminalStates[in.CurrentState] {
		return nil, hl7err.New(hl7err.KindSemantic, hl7err.CodeInvalidTransition,
			"A08 is not allowed once the file is in a terminal state", "current_state", in.CurrentState)
	}
	if in.StrictMode {
		return nil, hl7err.New(hl7err.KindSemantic, hl7err.CodeStrictModeBlocked,
			"A08 is disabled under strict PAM-FR mode")
	}
	if in.ZBE == nil {
		return nil, hl7err.New(hl7err.KindSemantic, hl7err.CodeMissingZBE,
			"A08 requires a ZBE segment")
	}
	return &Result{NewState: in.CurrentState, NewOperationalStatus: in.OperationalStatus}, nil
}

// EvaluateA40 validates a merge trigger: spec requires MRG to be present
// regardless of prior state.
func EvaluateA40(hasMRG bool) error {
	if !hasMRG {
		return hl7err.New(hl7err.KindSemantic, hl7err.CodeMissingMRG,
			"A40 merge requires an MRG segment")
	}
	return nil
}

// EvaluateZ99Correction validates the "ZBE-9 = C inside a Z99" rule: the
// original_trigger (ZBE-6) must be one of {A01, A04, A05} and the visit's
// operational_status must be planned or active.
func EvaluateZ99Correction(originalTrigger string, status domain.OperationalStatus) error {
	allowedTriggers := stateSet("A01", "A04", "A05")
	allowedStatuses := map[domain.OperationalStatus]bool{
		domain.VisitPlanned: true,
		domain.VisitActive:  true,
	}
	if !allowedTriggers[originalTrigger] || !allowedStatuses[status] {
		return hl7err.New(hl7err.KindSemantic, hl7err.CodeInvalidCorrectionContext,
			"Z99 cancellation correction requires original_trigger in {A01,A04,A05} and status in {planned,active}",
			"original_trigger", originalTrigger, "status", string(status))
	}
	return nil
}

// CancelTargetFor returns the trigger a cancellation trigger must cancel,
// and whether trigger is a recognized cancellation trigger at all (I5).
func CancelTargetFor(trigger string) (string, bool) {
	t, ok := cancelTargets[trigger]
	return t, ok
}
