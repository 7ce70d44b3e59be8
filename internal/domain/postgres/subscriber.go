package postgres

import (
	"context"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/shared/errors"
)

// ListSubscribers returns enabled subscribers registered for the given
// entity kind and interested in the given operation, consumed by the
// emission engine (C8) fan-out. A subscriber with an empty operations list
// is interested in both inserts and updates (spec §4.8 step 2).
func (s *txStore) ListSubscribers(ctx context.Context, kind domain.OwnerKind, operation string) ([]*domain.Subscriber, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT id, name, transport, endpoint, strict_mode, enabled, sending_app, sending_facility, operations
		FROM gateway.subscribers
		WHERE enabled = true AND $1 = ANY(kinds)
		  AND (operations = '{}' OR $2 = ANY(operations))`, string(kind), operation)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list subscribers")
	}
	defer rows.Close()

	var out []*domain.Subscriber
	for rows.Next() {
		sub := &domain.Subscriber{Kinds: []domain.OwnerKind{kind}}
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.Transport, &sub.Endpoint,
			&sub.StrictMode, &sub.Enabled, &sub.SendingApp, &sub.SendingFacility, &sub.Operations); err != nil {
			return nil, errors.Wrap(err, "failed to scan subscriber")
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate subscribers")
	}
	return out, nil
}
