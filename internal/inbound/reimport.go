package inbound

import (
	"context"

	"github.com/serbia-gov/platform/internal/hl7/parser"
	"github.com/serbia-gov/platform/internal/hl7err"
)

// Reimport replays an already-ingested payload into a second logical scope
// (SPEC_FULL.md §5 item 3: cross-GHT transfer, where a message accepted once
// under one Legal Entity's namespaces needs to land under a receiving Legal
// Entity's own namespace authorities). It reuses the same identity/encounter
// phases Handle runs, the only difference being that every CX identifier on
// the message is rescoped to targetScope before resolution, so it lands
// against (and if necessary creates) that scope's own namespaces rather than
// the originating scope's.
func (h *Handler) Reimport(ctx context.Context, payload []byte, targetScope string) Ack {
	msg, err := parser.Parse(payload)
	if err != nil {
		h.log.RecordParseError(ctx, payload, err)
		return h.ackFor(err, "")
	}

	if targetScope == "" {
		return h.ackFor(hl7err.New(hl7err.KindSemantic, hl7err.CodeUnsupportedTrigger,
			"reimport requires a non-empty target scope"), msg.MSH.ControlID)
	}

	rescope(msg, targetScope)

	tx, err := h.db.Begin(ctx)
	if err != nil {
		ge := hl7err.Wrap(hl7err.KindTransient, hl7err.CodeTransactionSerializationFailure, "failed to begin transaction", err)
		return h.ackFor(ge, msg.MSH.ControlID)
	}

	touched, err := h.process(ctx, tx, msg)
	if err != nil {
		tx.Rollback(ctx)
		h.log.RecordInbound(ctx, payload, msg.MSH.ControlID, err)
		return h.ackFor(err, msg.MSH.ControlID)
	}

	if err := h.log.AppendInbound(ctx, tx, payload, msg.MSH.ControlID); err != nil {
		tx.Rollback(ctx)
		return h.ackFor(err, msg.MSH.ControlID)
	}

	if err := tx.Commit(ctx); err != nil {
		ge := hl7err.Wrap(hl7err.KindTransient, hl7err.CodeTransactionSerializationFailure, "commit failed", err)
		return h.ackFor(ge, msg.MSH.ControlID)
	}

	h.emitter.NotifyCommitted(touched)

	return Ack{Code: hl7err.AckAA, ControlID: msg.MSH.ControlID, Text: "message reimported", AppName: h.appName, FacilityCode: h.facilityCode}
}

// rescope rewrites every CX's authority OID so it resolves against
// targetScope's own namespaces instead of whatever authority the originating
// system stamped on the message.
func rescope(msg *parser.Message, targetScope string) {
	if msg.PID != nil {
		for i := range msg.PID.Identifiers {
			rescopeCX(&msg.PID.Identifiers[i], targetScope)
		}
	}
	if msg.PV1 != nil && msg.PV1.VisitNumber != nil {
		rescopeCX(msg.PV1.VisitNumber, targetScope)
	}
	if msg.ZBE != nil {
		rescopeCX(&msg.ZBE.MovementID, targetScope)
	}
}

func rescopeCX(cx *parser.CX, targetScope string) {
	if cx.AuthorityOID != "" {
		cx.AuthorityOID = "scope:" + targetScope + ":" + cx.AuthorityOID
	} else {
		cx.AuthorityOID = "scope:" + targetScope + ":" + cx.AuthorityName
	}
}
