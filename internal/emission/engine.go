// Package emission fans a committed transaction's touched entities out to
// registered subscribers: an outbox-backed, bounded-concurrency worker pool
// that never lets one subscriber's failure affect another's (spec §4.8).
package emission

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/emissionguard"
	"github.com/serbia-gov/platform/internal/generator"
	"github.com/serbia-gov/platform/internal/hl7err"
	"github.com/serbia-gov/platform/internal/messagelog"
	apperrors "github.com/serbia-gov/platform/internal/shared/errors"
	"github.com/serbia-gov/platform/internal/shared/metrics"
	"github.com/serbia-gov/platform/internal/shared/types"
)

// Dispatcher sends a framed outbound message to one subscriber and reports
// the outcome the transport observed. Defined locally, not imported from a
// concrete transport package, so emission has no hard dependency on C9;
// internal/transport/mllp's client satisfies this structurally.
type Dispatcher interface {
	// Dispatch returns the MSA-1 ack code the subscriber replied with (for
	// MLLP/file transports) or "" for fire-and-forget kinds. A non-nil err
	// means the send itself failed (timeout, refused, generator error).
	Dispatch(ctx context.Context, sub *domain.Subscriber, payload []byte) (ackCode string, err error)
}

// Config tunes the worker pool.
type Config struct {
	Concurrency  int  // default 5, spec §4.8 semaphore limit
	QueueSize    int  // default 100, bounds memory under load
	GlobalStrict bool // PAM-FR global strict-mode toggle (SPEC_FULL.md supplement #4), ORed with the subscriber's own legal-entity strict flag
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	return c
}

// Engine is the commit hook registered with the inbound handler. It
// implements inbound.Emitter structurally via NotifyCommitted.
type Engine struct {
	db         domain.Database
	dispatcher Dispatcher
	log        *messagelog.Log
	cfg        Config

	tasks  chan domain.EmissionOutbox
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

func New(db domain.Database, dispatcher Dispatcher, mlog *messagelog.Log, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		db:         db,
		dispatcher: dispatcher,
		log:        mlog,
		cfg:        cfg,
		tasks:      make(chan domain.EmissionOutbox, cfg.QueueSize),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the bounded worker pool.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	for i := 0; i < e.cfg.Concurrency; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}
}

// Stop signals every worker to exit and waits for in-flight tasks to
// finish. Rows not yet picked off the channel stay undispatched in the
// outbox and are picked up by Recover on the next startup.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	e.mu.Unlock()

	close(e.stopCh)
	e.wg.Wait()
}

// NotifyCommitted implements inbound.Emitter. It deduplicates touched
// entities by (kind, id, operation) within this call, durably records each
// to the outbox, then signals a worker. A full queue drops only the live
// signal; the outbox row survives for the next Recover sweep.
func (e *Engine) NotifyCommitted(touched []domain.Touched) {
	seen := make(map[string]bool, len(touched))
	ctx := context.Background()

	for _, t := range touched {
		key := fmt.Sprintf("%s:%s:%s", t.Kind, t.ID, t.Operation)
		if seen[key] {
			continue
		}
		seen[key] = true

		row := domain.EmissionOutbox{
			EntityKind: t.Kind,
			EntityID:   t.ID,
			Operation:  t.Operation,
			Trigger:    t.Trigger,
			CreatedAt:  time.Now().UTC(),
		}
		if err := e.persistOutbox(ctx, &row); err != nil {
			log.Printf("emission: failed to persist outbox row for %s %s: %v", t.Kind, t.ID, err)
			continue
		}

		select {
		case e.tasks <- row:
		default:
			log.Printf("emission: dispatch queue full, %s %s deferred to next recovery sweep", t.Kind, t.ID)
		}
		metrics.SetEmissionQueueDepth(len(e.tasks))
	}
}

func (e *Engine) persistOutbox(ctx context.Context, row *domain.EmissionOutbox) error {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.InsertEmissionOutbox(ctx, row); err != nil {
		tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Recover requeues outbox rows a prior process never got to dispatch (a
// crash between commit and dispatch). Call once at startup, before Start.
func (e *Engine) Recover(ctx context.Context) error {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.ListUndispatchedOutbox(ctx, 1000)
	if err != nil {
		return err
	}
	for _, row := range rows {
		select {
		case e.tasks <- *row:
		default:
			log.Printf("emission: recovery queue full, %s %s will retry on the next sweep", row.EntityKind, row.EntityID)
		}
	}
	metrics.SetEmissionQueueDepth(len(e.tasks))
	return nil
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case row := <-e.tasks:
			e.process(ctx, row)
		}
	}
}

// process implements spec §4.8 steps (1)-(4): reload the entity through a
// fresh store session, list interested subscribers, dispatch to each,
// record the fate. One subscriber's failure never aborts the others, and
// the task itself never panics or returns an error to the caller.
func (e *Engine) process(parent context.Context, row domain.EmissionOutbox) {
	ctx := emissionguard.Mark(parent)
	metrics.SetEmissionQueueDepth(len(e.tasks))

	tx, err := e.db.Begin(ctx)
	if err != nil {
		log.Printf("emission: failed to open reload session for %s %s: %v", row.EntityKind, row.EntityID, err)
		return
	}
	defer tx.Rollback(ctx)

	ent, err := loadEntities(ctx, tx, row)
	if err != nil {
		if stderrors.Is(err, apperrors.ErrNotFound) {
			log.Printf("emission: %s %s no longer exists, dropping", row.EntityKind, row.EntityID)
			e.markDispatched(ctx, row.ID)
			return
		}
		log.Printf("emission: failed to reload %s %s: %v", row.EntityKind, row.EntityID, err)
		return
	}

	subs, err := tx.ListSubscribers(ctx, row.EntityKind, row.Operation)
	if err != nil {
		log.Printf("emission: failed to list subscribers for kind %s operation %s: %v", row.EntityKind, row.Operation, err)
		return
	}

	for _, sub := range subs {
		e.dispatchOne(ctx, sub, row, ent)
	}

	e.markDispatched(ctx, row.ID)
}

// markDispatched flips the outbox row's dispatched flag in its own short
// transaction, separate from the reload session (which is rolled back,
// never committed: it only ever reads).
func (e *Engine) markDispatched(ctx context.Context, id types.ID) {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		log.Printf("emission: failed to open transaction to mark outbox row dispatched: %v", err)
		return
	}
	if err := tx.MarkOutboxDispatched(ctx, id); err != nil {
		log.Printf("emission: failed to mark outbox row %s dispatched: %v", id, err)
		tx.Rollback(ctx)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		log.Printf("emission: failed to commit outbox dispatched marker: %v", err)
	}
}

// dispatchOne builds the outbound message for one subscriber, sends it,
// and appends the fate to the message log. It never returns an error: per
// spec §4.8 step (4), a subscriber's failure is isolated and recorded, not
// propagated.
func (e *Engine) dispatchOne(ctx context.Context, sub *domain.Subscriber, row domain.EmissionOutbox, ent generator.Entities) {
	target := generator.Target{
		SendingApp:        sub.SendingApp,
		SendingFacility:   sub.SendingFacility,
		ReceivingApp:      sub.Name,
		ReceivingFacility: sub.Name,
		LegalEntityStrict: sub.StrictMode,
		GlobalStrict:      e.cfg.GlobalStrict,
	}

	payload, controlID, err := generator.Generate(row.Trigger, ent, target, time.Now())
	if err != nil {
		e.log.AppendOutbound(ctx, sub.ID, nil, "", "generator_error", "", err.Error())
		metrics.RecordHL7Emitted(string(sub.Transport), "generator_error")
		return
	}

	ackCode, err := e.dispatcher.Dispatch(ctx, sub, payload)
	if err != nil {
		status, code := fateFor(err)
		e.log.AppendOutbound(ctx, sub.ID, payload, controlID, status, code, err.Error())
		metrics.RecordHL7Emitted(string(sub.Transport), status)
		return
	}

	if ackCode != "" && ackCode != string(hl7err.AckAA) {
		e.log.AppendOutbound(ctx, sub.ID, payload, controlID, "ack_error", ackCode, "subscriber did not acknowledge AA")
		metrics.RecordHL7Emitted(string(sub.Transport), "ack_error")
		return
	}

	status := "sent"
	if ackCode == string(hl7err.AckAA) {
		status = "ack_ok"
	}
	e.log.AppendOutbound(ctx, sub.ID, payload, controlID, status, ackCode, "")
	metrics.RecordHL7Emitted(string(sub.Transport), status)
}

// fateFor classifies a dispatcher error into the message-log status/code
// pair spec §4.8/§7 expects for subscriber-side failures.
func fateFor(err error) (status, code string) {
	if ge, ok := hl7err.As(err); ok {
		if ge.Code == hl7err.CodeSendTimeout {
			return "timeout", ge.Code
		}
		return "ack_error", ge.Code
	}
	return "ack_error", hl7err.CodeConnectionRefused
}
