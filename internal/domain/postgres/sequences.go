package postgres

import (
	"context"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/shared/errors"
)

// Next atomically increments and returns the named counter. The row lock
// taken by UPDATE...RETURNING under a SERIALIZABLE transaction is what
// gives allocation its strict ordering guarantee (spec §4.3).
func (s *txStore) Next(ctx context.Context, name domain.SequenceName) (int64, error) {
	var value int64
	err := s.tx.QueryRow(ctx, `
		INSERT INTO gateway.sequences (name, value)
		VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = gateway.sequences.value + 1
		RETURNING value`, string(name)).Scan(&value)
	if err != nil {
		return 0, errors.Wrap(err, "failed to allocate sequence "+string(name))
	}
	return value, nil
}
