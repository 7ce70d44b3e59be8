// Package messagelog appends every inbound and outbound HL7 message to the
// append-only gateway.message_log table (spec §4.10).
package messagelog

import (
	"context"
	"log"
	"time"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/hl7err"
	"github.com/serbia-gov/platform/internal/shared/events"
	"github.com/serbia-gov/platform/internal/shared/types"
)

// Log records message log entries, either inside a caller-supplied
// transaction (the accepted path) or in its own short transaction (the
// rejected path, since the caller's transaction has already rolled back).
//
// mirror is an optional KurrentDB publish of the same entries, for
// subscribers that want a stream of gateway traffic rather than polling the
// table; nil disables it.
type Log struct {
	db     domain.Database
	mirror *events.Bus
}

func New(db domain.Database) *Log {
	return &Log{db: db}
}

// WithMirror returns a copy of l that also publishes every logged entry to
// bus. bus may be nil, in which case mirroring stays disabled.
func (l *Log) WithMirror(bus *events.Bus) *Log {
	return &Log{db: l.db, mirror: bus}
}

// publish best-effort mirrors entry to KurrentDB. Never returns an error to
// the caller: a mirror outage must not affect message-log durability, which
// is owned by Postgres.
func (l *Log) publish(ctx context.Context, entry *domain.MessageLogEntry) {
	if l.mirror == nil {
		return
	}
	event := events.NewEvent("gateway.message_log."+string(entry.Direction), "gateway", map[string]any{
		"id":            entry.ID,
		"direction":     entry.Direction,
		"control_id":    entry.ControlID,
		"subscriber_id": entry.SubscriberID,
		"status":        entry.Status,
		"ack_code":      entry.AckCode,
		"error_text":    entry.ErrorText,
	}).WithCorrelation(entry.CorrelationID)
	if err := l.mirror.Publish(ctx, event); err != nil {
		log.Printf("messagelog: failed to mirror entry %s to event bus: %v", entry.ID, err)
	}
}

// AppendInbound records an accepted inbound message inside the caller's
// still-open transaction, so it commits atomically with the mutation it
// produced.
func (l *Log) AppendInbound(ctx context.Context, store domain.Store, payload []byte, controlID string) error {
	entry := &domain.MessageLogEntry{
		ID:        types.NewID(),
		Direction: domain.DirectionInbound,
		ControlID: controlID,
		Payload:   string(payload),
		Status:    "accepted",
		AckCode:   string(hl7err.AckAA),
		CreatedAt: now(),
	}
	if err := store.AppendMessageLog(ctx, entry); err != nil {
		return err
	}
	l.publish(ctx, entry)
	return nil
}

// RecordParseError logs a message that failed before a control id could be
// extracted.
func (l *Log) RecordParseError(ctx context.Context, payload []byte, err error) {
	l.recordRejected(ctx, payload, "", err)
}

// RecordInbound logs a message that parsed but was rejected during the
// identity/encounter/movement phases.
func (l *Log) RecordInbound(ctx context.Context, payload []byte, controlID string, err error) {
	l.recordRejected(ctx, payload, controlID, err)
}

func (l *Log) recordRejected(ctx context.Context, payload []byte, controlID string, cause error) {
	entry := &domain.MessageLogEntry{
		ID:        types.NewID(),
		Direction: domain.DirectionInbound,
		ControlID: controlID,
		Payload:   string(payload),
		Status:    "rejected",
		CreatedAt: now(),
	}
	if ge, ok := hl7err.As(cause); ok {
		entry.AckCode = string(hl7err.AckCodeFor(cause))
		entry.ErrorText = ge.Error()
	} else if cause != nil {
		entry.ErrorText = cause.Error()
	}

	tx, err := l.db.Begin(ctx)
	if err != nil {
		log.Printf("messagelog: failed to begin transaction for rejected message: %v", err)
		return
	}
	if err := tx.AppendMessageLog(ctx, entry); err != nil {
		log.Printf("messagelog: failed to record rejected message: %v", err)
		tx.Rollback(ctx)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		log.Printf("messagelog: failed to commit rejected message log: %v", err)
		return
	}
	l.publish(ctx, entry)
}

// AppendOutbound records a generated outbound message against a
// subscriber, with the fate the emission engine observed (spec §4.8:
// sent/ack_ok/ack_error/timeout/generator_error).
func (l *Log) AppendOutbound(ctx context.Context, subscriberID types.ID, payload []byte, controlID, status, ackCode, errText string) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		log.Printf("messagelog: failed to begin transaction for outbound message log: %v", err)
		return
	}
	entry := &domain.MessageLogEntry{
		ID:           types.NewID(),
		Direction:    domain.DirectionOutbound,
		ControlID:    controlID,
		SubscriberID: &subscriberID,
		Payload:      string(payload),
		Status:       status,
		AckCode:      ackCode,
		ErrorText:    errText,
		CreatedAt:    now(),
	}
	if err := tx.AppendMessageLog(ctx, entry); err != nil {
		log.Printf("messagelog: failed to record outbound message: %v", err)
		tx.Rollback(ctx)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		log.Printf("messagelog: failed to commit outbound message log: %v", err)
		return
	}
	l.publish(ctx, entry)
}

func now() time.Time { return time.Now().UTC() }
