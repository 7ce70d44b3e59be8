package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/shared/errors"
	"github.com/serbia-gov/platform/internal/shared/types"
)

const movementColumns = `id, visit_id, sequence, timestamp, trigger_event, nature, action,
	location, cancelled_id, cancelled`

func scanMovement(row pgx.Row) (*domain.Movement, error) {
	m := &domain.Movement{}
	err := row.Scan(&m.ID, &m.VisitID, &m.Sequence, &m.Timestamp, &m.TriggerEvent, &m.Nature,
		&m.Action, &m.Location, &m.CancelledID, &m.Cancelled)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan movement")
	}
	return m, nil
}

func (s *txStore) GetMovement(ctx context.Context, id types.ID) (*domain.Movement, error) {
	row := s.tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM gateway.movements WHERE id = $1`, id)
	m, err := scanMovement(row)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.NotFound("movement", id.String())
	}
	return m, nil
}

// LatestMovementForVisit returns the non-cancelled movement with the
// highest sequence in the visit (I3/I4: total order, ties forbidden).
func (s *txStore) LatestMovementForVisit(ctx context.Context, visitID types.ID) (*domain.Movement, error) {
	row := s.tx.QueryRow(ctx, `
		SELECT `+movementColumns+` FROM gateway.movements
		WHERE visit_id = $1 AND cancelled = false
		ORDER BY sequence DESC LIMIT 1`, visitID)
	return scanMovement(row)
}

// FindMovementByVisitAndSequence backs Z99 inline corrections targeting a
// specific movement by its visit-scoped sequence number.
func (s *txStore) FindMovementByVisitAndSequence(ctx context.Context, visitID types.ID, sequence int64) (*domain.Movement, error) {
	row := s.tx.QueryRow(ctx, `
		SELECT `+movementColumns+` FROM gateway.movements
		WHERE visit_id = $1 AND sequence = $2`, visitID, sequence)
	return scanMovement(row)
}

func (s *txStore) CreateMovement(ctx context.Context, m *domain.Movement) error {
	if m.ID.IsZero() {
		m.ID = types.NewID()
	}
	_, err := s.tx.Exec(ctx, `
		INSERT INTO gateway.movements (
			id, visit_id, sequence, timestamp, trigger_event, nature, action,
			location, cancelled_id, cancelled
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		m.ID, m.VisitID, m.Sequence, m.Timestamp, m.TriggerEvent, m.Nature, m.Action,
		m.Location, m.CancelledID, m.Cancelled)
	if err != nil {
		return errors.Wrap(err, "failed to create movement")
	}
	return nil
}

// UpdateMovement is used only to flip Cancelled=true on the movement a
// CANCEL action targets (spec §4.6 step 5): movements are otherwise
// immutable once persisted.
func (s *txStore) UpdateMovement(ctx context.Context, m *domain.Movement) error {
	_, err := s.tx.Exec(ctx, `UPDATE gateway.movements SET cancelled = $2 WHERE id = $1`,
		m.ID, m.Cancelled)
	if err != nil {
		return errors.Wrap(err, "failed to update movement")
	}
	return nil
}
