package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/shared/errors"
	"github.com/serbia-gov/platform/internal/shared/types"
)

func (s *txStore) FindNamespaceByOID(ctx context.Context, oid string) (*domain.Namespace, error) {
	ns := &domain.Namespace{}
	err := s.tx.QueryRow(ctx, `
		SELECT id, name, oid, type, scope FROM gateway.namespaces WHERE oid = $1`,
		oid).Scan(&ns.ID, &ns.Name, &ns.OID, &ns.Type, &ns.Scope)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find namespace by oid")
	}
	return ns, nil
}

func (s *txStore) CreateNamespace(ctx context.Context, ns *domain.Namespace) error {
	if ns.ID.IsZero() {
		ns.ID = types.NewID()
	}
	_, err := s.tx.Exec(ctx, `
		INSERT INTO gateway.namespaces (id, name, oid, type, scope)
		VALUES ($1, $2, $3, $4, $5)`,
		ns.ID, ns.Name, ns.OID, ns.Type, ns.Scope)
	if err != nil {
		return errors.Wrap(err, "failed to create namespace")
	}
	return nil
}
