package emission

import (
	"context"
	"fmt"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/generator"
)

// loadEntities reloads the full chain needed to render a message for the
// touched entity's kind, through a fresh store session (spec §4.8 step 1:
// the original transaction's session is already closed by the time a
// dispatch task runs).
func loadEntities(ctx context.Context, store domain.Store, row domain.EmissionOutbox) (generator.Entities, error) {
	var ent generator.Entities

	switch row.EntityKind {
	case domain.OwnerPatient:
		p, err := store.GetPatient(ctx, row.EntityID)
		if err != nil {
			return ent, err
		}
		ent.Patient = p

	case domain.OwnerAdminFile:
		f, err := store.GetAdminFile(ctx, row.EntityID)
		if err != nil {
			return ent, err
		}
		ent.AdminFile = f
		if ent.Patient, err = store.GetPatient(ctx, f.PatientID); err != nil {
			return ent, err
		}

	case domain.OwnerVisit:
		v, err := store.GetVisit(ctx, row.EntityID)
		if err != nil {
			return ent, err
		}
		ent.Visit = v
		f, err := store.GetAdminFile(ctx, v.AdminFileID)
		if err != nil {
			return ent, err
		}
		ent.AdminFile = f
		if ent.Patient, err = store.GetPatient(ctx, f.PatientID); err != nil {
			return ent, err
		}

	case domain.OwnerMovement:
		m, err := store.GetMovement(ctx, row.EntityID)
		if err != nil {
			return ent, err
		}
		ent.Movement = m
		v, err := store.GetVisit(ctx, m.VisitID)
		if err != nil {
			return ent, err
		}
		ent.Visit = v
		f, err := store.GetAdminFile(ctx, v.AdminFileID)
		if err != nil {
			return ent, err
		}
		ent.AdminFile = f
		if ent.Patient, err = store.GetPatient(ctx, f.PatientID); err != nil {
			return ent, err
		}

	default:
		return ent, fmt.Errorf("emission: unknown touched entity kind %q", row.EntityKind)
	}

	if ent.Patient != nil {
		views, err := store.ListIdentifiersForOwner(ctx, domain.OwnerPatient, ent.Patient.ID)
		if err != nil {
			return ent, err
		}
		for _, v := range views {
			ent.Identifiers = append(ent.Identifiers, generator.IdentifierView{
				Value: v.Value, AuthorityName: v.NamespaceName, AuthorityOID: v.NamespaceOID, Type: string(v.NamespaceType),
			})
		}
	}

	if ent.AdminFile != nil {
		views, err := store.ListIdentifiersForOwner(ctx, domain.OwnerAdminFile, ent.AdminFile.ID)
		if err != nil {
			return ent, err
		}
		for _, v := range views {
			ent.AdminFileIdentifiers = append(ent.AdminFileIdentifiers, generator.IdentifierView{
				Value: v.Value, AuthorityName: v.NamespaceName, AuthorityOID: v.NamespaceOID, Type: string(v.NamespaceType),
			})
		}
	}

	if ent.Movement != nil {
		views, err := store.ListIdentifiersForOwner(ctx, domain.OwnerMovement, ent.Movement.ID)
		if err != nil {
			return ent, err
		}
		for _, v := range views {
			ent.MovementIdentifiers = append(ent.MovementIdentifiers, generator.IdentifierView{
				Value: v.Value, AuthorityName: v.NamespaceName, AuthorityOID: v.NamespaceOID, Type: string(v.NamespaceType),
			})
		}
	}

	return ent, nil
}
