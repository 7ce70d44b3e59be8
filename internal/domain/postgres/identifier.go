package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/shared/errors"
	"github.com/serbia-gov/platform/internal/shared/types"
)

// FindIdentifier enforces I1 at read time: it only ever returns an active
// identifier scoped to (namespace, value, owner kind).
func (s *txStore) FindIdentifier(ctx context.Context, namespaceID types.ID, value string, owner domain.OwnerKind) (*domain.Identifier, error) {
	id := &domain.Identifier{}
	err := s.tx.QueryRow(ctx, `
		SELECT id, value, namespace_id, status, owner_kind, owner_id
		FROM gateway.identifiers
		WHERE namespace_id = $1 AND value = $2 AND owner_kind = $3 AND status = 'active'`,
		namespaceID, value, string(owner)).Scan(
		&id.ID, &id.Value, &id.NamespaceID, &id.Status, &id.OwnerKind, &id.OwnerID)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find identifier")
	}
	return id, nil
}

// ListIdentifiersForOwner backs C7 rendering of the full CX repetition list
// for a patient/admin_file/movement.
func (s *txStore) ListIdentifiersForOwner(ctx context.Context, owner domain.OwnerKind, ownerID types.ID) ([]*domain.IdentifierWithNamespace, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT i.id, i.value, i.namespace_id, i.status, i.owner_kind, i.owner_id,
			n.name, n.oid, n.type
		FROM gateway.identifiers i
		JOIN gateway.namespaces n ON n.id = i.namespace_id
		WHERE i.owner_kind = $1 AND i.owner_id = $2 AND i.status = 'active'`,
		string(owner), ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list identifiers for owner")
	}
	defer rows.Close()

	var out []*domain.IdentifierWithNamespace
	for rows.Next() {
		v := &domain.IdentifierWithNamespace{}
		if err := rows.Scan(&v.ID, &v.Value, &v.NamespaceID, &v.Status, &v.OwnerKind, &v.OwnerID,
			&v.NamespaceName, &v.NamespaceOID, &v.NamespaceType); err != nil {
			return nil, errors.Wrap(err, "failed to scan identifier with namespace")
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate identifiers for owner")
	}
	return out, nil
}

func (s *txStore) CreateIdentifier(ctx context.Context, id *domain.Identifier) error {
	if id.ID.IsZero() {
		id.ID = types.NewID()
	}
	if id.Status == "" {
		id.Status = domain.IdentifierActive
	}
	_, err := s.tx.Exec(ctx, `
		INSERT INTO gateway.identifiers (id, value, namespace_id, status, owner_kind, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (namespace_id, value, owner_kind) WHERE status = 'active' DO NOTHING`,
		id.ID, id.Value, id.NamespaceID, id.Status, string(id.OwnerKind), id.OwnerID)
	if err != nil {
		return errors.Wrap(err, "failed to create identifier")
	}
	return nil
}
