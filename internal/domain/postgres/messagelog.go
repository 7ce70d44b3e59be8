package postgres

import (
	"context"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/shared/errors"
	"github.com/serbia-gov/platform/internal/shared/types"
)

func (s *txStore) AppendMessageLog(ctx context.Context, entry *domain.MessageLogEntry) error {
	if entry.ID.IsZero() {
		entry.ID = types.NewID()
	}
	_, err := s.tx.Exec(ctx, `
		INSERT INTO gateway.message_log (
			id, direction, correlation_id, control_id, subscriber_id,
			payload, status, ack_code, error_text, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		entry.ID, string(entry.Direction), entry.CorrelationID, entry.ControlID, entry.SubscriberID,
		entry.Payload, entry.Status, entry.AckCode, entry.ErrorText, entry.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to append message log entry")
	}
	return nil
}
