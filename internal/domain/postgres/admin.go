package postgres

import (
	"context"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/shared/errors"
)

// The admin HTTP surface reads directly off the pool rather than through a
// Tx, since these are unauthenticated-by-transaction, read-only listings
// with no invariant to protect (nothing here feeds back into the pipeline).

// ListAllSubscribers returns every registered subscriber regardless of kind
// or enabled status, for the admin surface.
func (db *DB) ListAllSubscribers(ctx context.Context) ([]*domain.Subscriber, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, transport, endpoint, strict_mode, enabled, sending_app, sending_facility, kinds
		FROM gateway.subscribers
		ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list subscribers")
	}
	defer rows.Close()

	var out []*domain.Subscriber
	for rows.Next() {
		sub := &domain.Subscriber{}
		var kinds []string
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.Transport, &sub.Endpoint,
			&sub.StrictMode, &sub.Enabled, &sub.SendingApp, &sub.SendingFacility, &kinds); err != nil {
			return nil, errors.Wrap(err, "failed to scan subscriber")
		}
		for _, k := range kinds {
			sub.Kinds = append(sub.Kinds, domain.OwnerKind(k))
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate subscribers")
	}
	return out, nil
}

// ListNamespaces returns every identifier namespace known to the gateway.
func (db *DB) ListNamespaces(ctx context.Context) ([]*domain.Namespace, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, oid, type, scope FROM gateway.namespaces ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list namespaces")
	}
	defer rows.Close()

	var out []*domain.Namespace
	for rows.Next() {
		ns := &domain.Namespace{}
		if err := rows.Scan(&ns.ID, &ns.Name, &ns.OID, &ns.Type, &ns.Scope); err != nil {
			return nil, errors.Wrap(err, "failed to scan namespace")
		}
		out = append(out, ns)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate namespaces")
	}
	return out, nil
}

// MessageLogFilter narrows ListMessageLog's result set; zero values mean
// "don't filter on this field".
type MessageLogFilter struct {
	Direction domain.MessageDirection
	Status    string
	Limit     int
}

// ListMessageLog returns the most recent message log entries matching the
// filter, newest first, for the admin audit view (C10).
func (db *DB) ListMessageLog(ctx context.Context, filter MessageLogFilter) ([]*domain.MessageLogEntry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, direction, correlation_id, control_id, subscriber_id,
		       payload, status, ack_code, error_text, created_at
		FROM gateway.message_log
		WHERE ($1 = '' OR direction = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3`,
		string(filter.Direction), filter.Status, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list message log")
	}
	defer rows.Close()

	var out []*domain.MessageLogEntry
	for rows.Next() {
		entry := &domain.MessageLogEntry{}
		if err := rows.Scan(&entry.ID, &entry.Direction, &entry.CorrelationID, &entry.ControlID,
			&entry.SubscriberID, &entry.Payload, &entry.Status, &entry.AckCode, &entry.ErrorText,
			&entry.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan message log entry")
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate message log")
	}
	return out, nil
}
