package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/shared/errors"
	"github.com/serbia-gov/platform/internal/shared/types"
)

func (s *txStore) GetPatient(ctx context.Context, id types.ID) (*domain.Patient, error) {
	p := &domain.Patient{}
	var namesJSON, addrJSON, phonesJSON []byte
	err := s.tx.QueryRow(ctx, `
		SELECT id, names, addresses, phones, birth_date, administrative_gender,
			ssn, mothers_maiden_name, birth_place, marital_status, reliability, created_at, updated_at
		FROM gateway.patients WHERE id = $1`, id).Scan(
		&p.ID, &namesJSON, &addrJSON, &phonesJSON, &p.BirthDate, &p.AdministrativeGender,
		&p.SSN, &p.MothersMaidenName, &p.BirthPlace, &p.MaritalStatus, &p.Reliability, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("patient", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get patient")
	}
	if err := unmarshalIfPresent(namesJSON, &p.Names); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(addrJSON, &p.Addresses); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(phonesJSON, &p.Phones); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *txStore) CreatePatient(ctx context.Context, p *domain.Patient) error {
	if p.ID.IsZero() {
		p.ID = types.NewID()
	}
	names, err := json.Marshal(p.Names)
	if err != nil {
		return errors.Wrap(err, "failed to marshal patient names")
	}
	addrs, err := json.Marshal(p.Addresses)
	if err != nil {
		return errors.Wrap(err, "failed to marshal patient addresses")
	}
	phones, err := json.Marshal(p.Phones)
	if err != nil {
		return errors.Wrap(err, "failed to marshal patient phones")
	}
	_, err = s.tx.Exec(ctx, `
		INSERT INTO gateway.patients (
			id, names, addresses, phones, birth_date, administrative_gender,
			ssn, mothers_maiden_name, birth_place, marital_status, reliability, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		p.ID, names, addrs, phones, p.BirthDate, p.AdministrativeGender,
		p.SSN, p.MothersMaidenName, p.BirthPlace, p.MaritalStatus, p.Reliability, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create patient")
	}
	return nil
}

// UpdatePatient performs the additive merge required by spec §4.6 step 3:
// callers pass in a Patient whose slices already contain the merged result
// (incoming values replacing same-kind entries, missing values preserved).
func (s *txStore) UpdatePatient(ctx context.Context, p *domain.Patient) error {
	names, err := json.Marshal(p.Names)
	if err != nil {
		return errors.Wrap(err, "failed to marshal patient names")
	}
	addrs, err := json.Marshal(p.Addresses)
	if err != nil {
		return errors.Wrap(err, "failed to marshal patient addresses")
	}
	phones, err := json.Marshal(p.Phones)
	if err != nil {
		return errors.Wrap(err, "failed to marshal patient phones")
	}
	_, err = s.tx.Exec(ctx, `
		UPDATE gateway.patients SET
			names = $2, addresses = $3, phones = $4, birth_date = $5,
			administrative_gender = $6, ssn = $7, mothers_maiden_name = $8,
			birth_place = $9, marital_status = $10, reliability = $11, updated_at = $12
		WHERE id = $1`,
		p.ID, names, addrs, phones, p.BirthDate, p.AdministrativeGender,
		p.SSN, p.MothersMaidenName, p.BirthPlace, p.MaritalStatus, p.Reliability, p.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to update patient")
	}
	return nil
}

func unmarshalIfPresent(raw []byte, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.Wrap(err, "failed to unmarshal stored json")
	}
	return nil
}
