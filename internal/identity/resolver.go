// Package identity resolves an incoming PID's identifiers to an existing
// Patient, or signals that one must be created (spec §4.4).
package identity

import (
	"context"
	"log"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/hl7/parser"
	"github.com/serbia-gov/platform/internal/hl7err"
	"github.com/serbia-gov/platform/internal/shared/types"
)

// Resolver resolves PID identifiers against the domain store within the
// caller's transaction.
type Resolver struct{}

func New() *Resolver {
	return &Resolver{}
}

// Resolution is the outcome of resolving one PID's identifier list.
type Resolution struct {
	// Patient is the matched owner, or nil if no identifier resolved.
	Patient *domain.Patient
	// MatchedIdentifiers lists which of the incoming identifiers matched
	// an existing Identifier row, for diagnostics.
	MatchedIdentifiers []parser.CX
}

// Resolve implements spec §4.4 steps 1-3. store must be the Store bound to
// the inbound handler's current transaction.
func (r *Resolver) Resolve(ctx context.Context, store domain.Store, identifiers []parser.CX) (*Resolution, error) {
	res := &Resolution{}
	var ownerID types.ID

	for _, cx := range identifiers {
		if cx.Value == "" {
			continue
		}
		ns, err := r.ResolveNamespace(ctx, store, cx)
		if err != nil {
			return nil, err
		}

		id, err := store.FindIdentifier(ctx, ns.ID, cx.Value, domain.OwnerPatient)
		if err != nil {
			return nil, err
		}
		if id == nil {
			continue
		}

		res.MatchedIdentifiers = append(res.MatchedIdentifiers, cx)
		if ownerID.IsZero() {
			ownerID = id.OwnerID
		} else if ownerID != id.OwnerID {
			return nil, hl7err.New(hl7err.KindSemantic, hl7err.CodeAmbiguousIdentity,
				"incoming identifiers resolve to more than one patient",
				"first_owner", ownerID.String(), "second_owner", id.OwnerID.String())
		}
	}

	if ownerID.IsZero() {
		return res, nil
	}

	patient, err := store.GetPatient(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	res.Patient = patient
	return res, nil
}

// ResolveNamespace finds the Namespace matching a CX's authority OID,
// creating an implicit PI-typed namespace and logging a warning if none
// exists yet.
func (r *Resolver) ResolveNamespace(ctx context.Context, store domain.Store, cx parser.CX) (*domain.Namespace, error) {
	if cx.AuthorityOID == "" {
		cx.AuthorityOID = "urn:local:" + cx.AuthorityName
	}
	ns, err := store.FindNamespaceByOID(ctx, cx.AuthorityOID)
	if err != nil {
		return nil, err
	}
	if ns != nil {
		return ns, nil
	}

	log.Printf("identity: creating implicit namespace for unknown authority %q (oid=%s)",
		cx.AuthorityName, cx.AuthorityOID)

	ns = &domain.Namespace{
		ID:    types.NewID(),
		Name:  cx.AuthorityName,
		OID:   cx.AuthorityOID,
		Type:  domain.NamespacePI,
		Scope: domain.ScopeLegalEntity,
	}
	if err := store.CreateNamespace(ctx, ns); err != nil {
		return nil, err
	}
	return ns, nil
}

// CreatablePatientTriggers are the triggers the inbound handler (C6) may
// allocate a new Patient for when no identifier resolves (spec §4.6 step 3).
var CreatablePatientTriggers = map[string]bool{
	"A01": true, "A04": true, "A05": true, "A28": true,
}
