package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/shared/errors"
	"github.com/serbia-gov/platform/internal/shared/types"
)

const adminFileColumns = `id, patient_id, admission_type, uf_medical, uf_housing, uf_care,
	admit_time, discharge_time, current_state, created_at, updated_at`

func scanAdminFile(row pgx.Row) (*domain.AdminFile, error) {
	f := &domain.AdminFile{}
	err := row.Scan(&f.ID, &f.PatientID, &f.AdmissionType, &f.UFMedical, &f.UFHousing, &f.UFCare,
		&f.AdmitTime, &f.DischargeTime, &f.CurrentState, &f.CreatedAt, &f.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan admin file")
	}
	return f, nil
}

func (s *txStore) FindAdminFileByPatientAndAdmitTime(ctx context.Context, patientID types.ID, admitTime interface{}) (*domain.AdminFile, error) {
	row := s.tx.QueryRow(ctx, `
		SELECT `+adminFileColumns+` FROM gateway.admin_files
		WHERE patient_id = $1 AND admit_time = $2`, patientID, admitTime)
	return scanAdminFile(row)
}

func (s *txStore) FindAdminFileByNDA(ctx context.Context, nda string) (*domain.AdminFile, error) {
	row := s.tx.QueryRow(ctx, `
		SELECT f.id, f.patient_id, f.admission_type, f.uf_medical, f.uf_housing, f.uf_care,
			f.admit_time, f.discharge_time, f.current_state, f.created_at, f.updated_at
		FROM gateway.admin_files f
		JOIN gateway.identifiers i ON i.owner_id = f.id AND i.owner_kind = 'admin_file'
		WHERE i.value = $1 AND i.status = 'active'`, nda)
	return scanAdminFile(row)
}

func (s *txStore) GetAdminFile(ctx context.Context, id types.ID) (*domain.AdminFile, error) {
	row := s.tx.QueryRow(ctx, `SELECT `+adminFileColumns+` FROM gateway.admin_files WHERE id = $1`, id)
	f, err := scanAdminFile(row)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, errors.NotFound("admin_file", id.String())
	}
	return f, nil
}

// GetAdminFileForUpdate takes a row lock so that concurrent transitions on
// the same file serialize (DESIGN.md: concurrent-A01 Open Question).
func (s *txStore) GetAdminFileForUpdate(ctx context.Context, id types.ID) (*domain.AdminFile, error) {
	row := s.tx.QueryRow(ctx, `SELECT `+adminFileColumns+` FROM gateway.admin_files WHERE id = $1 FOR UPDATE`, id)
	f, err := scanAdminFile(row)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, errors.NotFound("admin_file", id.String())
	}
	return f, nil
}

func (s *txStore) CreateAdminFile(ctx context.Context, f *domain.AdminFile) error {
	if f.ID.IsZero() {
		f.ID = types.NewID()
	}
	_, err := s.tx.Exec(ctx, `
		INSERT INTO gateway.admin_files (
			id, patient_id, admission_type, uf_medical, uf_housing, uf_care,
			admit_time, discharge_time, current_state, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		f.ID, f.PatientID, f.AdmissionType, f.UFMedical, f.UFHousing, f.UFCare,
		f.AdmitTime, f.DischargeTime, f.CurrentState, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create admin file")
	}
	return nil
}

func (s *txStore) UpdateAdminFile(ctx context.Context, f *domain.AdminFile) error {
	_, err := s.tx.Exec(ctx, `
		UPDATE gateway.admin_files SET
			admission_type = $2, uf_medical = $3, uf_housing = $4, uf_care = $5,
			discharge_time = $6, current_state = $7, updated_at = $8
		WHERE id = $1`,
		f.ID, f.AdmissionType, f.UFMedical, f.UFHousing, f.UFCare,
		f.DischargeTime, f.CurrentState, f.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to update admin file")
	}
	return nil
}
