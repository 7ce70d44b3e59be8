package postgres

import (
	"context"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/shared/errors"
	"github.com/serbia-gov/platform/internal/shared/types"
)

// InsertEmissionOutbox records a touched entity for the emission engine.
// The unique (kind, id, operation, dispatched) constraint means a retried
// insert for an already-pending row is a harmless no-op.
func (s *txStore) InsertEmissionOutbox(ctx context.Context, row *domain.EmissionOutbox) error {
	if row.ID.IsZero() {
		row.ID = types.NewID()
	}
	_, err := s.tx.Exec(ctx, `
		INSERT INTO gateway.emission_outbox (
			id, entity_kind, entity_id, operation, trigger, created_at, dispatched
		) VALUES ($1,$2,$3,$4,$5,$6,false)
		ON CONFLICT (entity_kind, entity_id, operation, dispatched) DO NOTHING`,
		row.ID, string(row.EntityKind), row.EntityID, row.Operation, row.Trigger, row.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to insert emission outbox row")
	}
	return nil
}

func (s *txStore) ListUndispatchedOutbox(ctx context.Context, limit int) ([]*domain.EmissionOutbox, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT id, entity_kind, entity_id, operation, trigger, created_at, dispatched
		FROM gateway.emission_outbox
		WHERE dispatched = false
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list undispatched outbox rows")
	}
	defer rows.Close()

	var out []*domain.EmissionOutbox
	for rows.Next() {
		row := &domain.EmissionOutbox{}
		if err := rows.Scan(&row.ID, &row.EntityKind, &row.EntityID, &row.Operation,
			&row.Trigger, &row.CreatedAt, &row.Dispatched); err != nil {
			return nil, errors.Wrap(err, "failed to scan outbox row")
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate outbox rows")
	}
	return out, nil
}

func (s *txStore) MarkOutboxDispatched(ctx context.Context, id types.ID) error {
	tag, err := s.tx.Exec(ctx, `UPDATE gateway.emission_outbox SET dispatched = true WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to mark outbox row dispatched")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("emission_outbox", id.String())
	}
	return nil
}
