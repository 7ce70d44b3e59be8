package pam

import (
	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/hl7err"
)

// allowedMovementsByType lists the trigger events a file of a given
// admission type may carry in its Movement history, grounded on the
// original implementation's dossier-type validation rules.
var allowedMovementsByType = map[domain.AdmissionType]map[string]bool{
	domain.AdmissionHospitalized: stateSet("A01", "A02", "A03", "A06", "A11", "A12", "A13", "A21", "A22", "A08"),
	domain.AdmissionOutpatient:   stateSet("A04", "A05", "A07", "A08"),
	domain.AdmissionEmergency:    stateSet("A04", "A01", "A06", "A08"),
}

// allowedTypeTransitions lists which reclassifications of admission_type
// are permitted at all, independent of movement history.
var allowedTypeTransitions = map[domain.AdmissionType]map[domain.AdmissionType]bool{
	domain.AdmissionEmergency: {
		domain.AdmissionHospitalized: true,
		domain.AdmissionOutpatient:   true,
	},
	domain.AdmissionOutpatient: {
		domain.AdmissionHospitalized: true,
	},
}

// ValidateAdmissionTypeChange checks that reclassifying an AdminFile from
// one admission_type to another is both a permitted transition and
// compatible with the triggers already recorded in its movement history
// (original_source: app/utils/dossier_validators.py).
func ValidateAdmissionTypeChange(from, to domain.AdmissionType, history []*domain.Movement) error {
	if from == to {
		return nil
	}
	if !allowedTypeTransitions[from][to] {
		return hl7err.New(hl7err.KindSemantic, hl7err.CodeInvalidTransition,
			"admission type transition is not permitted", "from", string(from), "to", string(to))
	}

	allowed := allowedMovementsByType[to]
	for _, m := range history {
		if m.Cancelled {
			continue
		}
		if !allowed[m.TriggerEvent] {
			return hl7err.New(hl7err.KindSemantic, hl7err.CodeInvalidTransition,
				"existing movement history is incompatible with the target admission type",
				"trigger", m.TriggerEvent, "target_type", string(to))
		}
	}
	return nil
}
