package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/shared/errors"
	"github.com/serbia-gov/platform/internal/shared/types"
)

const visitColumns = `id, admin_file_id, start_time, end_time, location,
	uf_medical, uf_housing, uf_care, operational_status`

func scanVisit(row pgx.Row) (*domain.Visit, error) {
	v := &domain.Visit{}
	err := row.Scan(&v.ID, &v.AdminFileID, &v.StartTime, &v.EndTime, &v.Location,
		&v.UFMedical, &v.UFHousing, &v.UFCare, &v.OperationalStatus)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan visit")
	}
	return v, nil
}

func (s *txStore) GetVisit(ctx context.Context, id types.ID) (*domain.Visit, error) {
	row := s.tx.QueryRow(ctx, `SELECT `+visitColumns+` FROM gateway.visits WHERE id = $1`, id)
	v, err := scanVisit(row)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errors.NotFound("visit", id.String())
	}
	return v, nil
}

// LatestVisitForFile returns the file's most recently started Visit, or
// nil if the file has none yet (an empty file per I3).
func (s *txStore) LatestVisitForFile(ctx context.Context, fileID types.ID) (*domain.Visit, error) {
	row := s.tx.QueryRow(ctx, `
		SELECT `+visitColumns+` FROM gateway.visits
		WHERE admin_file_id = $1 ORDER BY start_time DESC LIMIT 1`, fileID)
	return scanVisit(row)
}

func (s *txStore) CreateVisit(ctx context.Context, v *domain.Visit) error {
	if v.ID.IsZero() {
		v.ID = types.NewID()
	}
	_, err := s.tx.Exec(ctx, `
		INSERT INTO gateway.visits (
			id, admin_file_id, start_time, end_time, location,
			uf_medical, uf_housing, uf_care, operational_status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		v.ID, v.AdminFileID, v.StartTime, v.EndTime, v.Location,
		v.UFMedical, v.UFHousing, v.UFCare, v.OperationalStatus)
	if err != nil {
		return errors.Wrap(err, "failed to create visit")
	}
	return nil
}

func (s *txStore) UpdateVisit(ctx context.Context, v *domain.Visit) error {
	_, err := s.tx.Exec(ctx, `
		UPDATE gateway.visits SET
			end_time = $2, location = $3, uf_medical = $4, uf_housing = $5,
			uf_care = $6, operational_status = $7
		WHERE id = $1`,
		v.ID, v.EndTime, v.Location, v.UFMedical, v.UFHousing, v.UFCare, v.OperationalStatus)
	if err != nil {
		return errors.Wrap(err, "failed to update visit")
	}
	return nil
}
