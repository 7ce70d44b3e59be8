// Package filepoller implements the file-drop transport (C9): an
// inbox/processing/archive/error state machine per subscriber endpoint,
// polled on an independent worker per endpoint (spec §4.9).
package filepoller

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/serbia-gov/platform/internal/inbound"
)

// Processor runs the inbound pipeline for one deframed payload. Satisfied
// structurally by *inbound.Handler.
type Processor interface {
	Handle(ctx context.Context, payload []byte) inbound.Ack
}

// readySentinel, when present alongside a data file, marks that an
// upstream writer has finished an atomic upload (spec §4.9, optional).
const readySentinel = ".ready"

// Endpoint is one directory this poller watches.
type Endpoint struct {
	Dir          string
	Extensions   []string // e.g. ".hl7", ".txt"; empty means accept any
	PollInterval time.Duration
}

func (e Endpoint) withDefaults() Endpoint {
	if e.PollInterval <= 0 {
		e.PollInterval = 5 * time.Second
	}
	return e
}

// Poller runs one independent worker per endpoint.
type Poller struct {
	processor Processor

	mu        sync.Mutex
	endpoints []Endpoint
	stopCh    chan struct{}
	wg        sync.WaitGroup
	started   bool
}

func New(processor Processor) *Poller {
	return &Poller{processor: processor, stopCh: make(chan struct{})}
}

// Watch registers an endpoint. Call before Start.
func (p *Poller) Watch(ep Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endpoints = append(p.endpoints, ep.withDefaults())
}

// Start launches one polling goroutine per registered endpoint.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	endpoints := append([]Endpoint(nil), p.endpoints...)
	p.mu.Unlock()

	for _, ep := range endpoints {
		p.wg.Add(1)
		go p.run(ctx, ep)
	}
}

// Stop signals every endpoint worker to exit and waits for the current
// poll cycle to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, ep Endpoint) {
	defer p.wg.Done()

	if err := ensureDirs(ep.Dir); err != nil {
		log.Printf("filepoller: %s: failed to prepare directories: %v", ep.Dir, err)
		return
	}

	ticker := time.NewTicker(ep.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.poll(ctx, ep)
		}
	}
}

func ensureDirs(base string) error {
	for _, sub := range []string{"inbox", "processing", "archive", "error"} {
		if err := os.MkdirAll(filepath.Join(base, sub), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// poll lists the inbox once, moving every eligible file through
// processing before dispatching its contents.
func (p *Poller) poll(ctx context.Context, ep Endpoint) {
	inbox := filepath.Join(ep.Dir, "inbox")
	entries, err := os.ReadDir(inbox)
	if err != nil {
		log.Printf("filepoller: %s: failed to list inbox: %v", inbox, err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), readySentinel) {
			continue
		}
		if !matchesExtension(entry.Name(), ep.Extensions) {
			continue
		}
		if !readyToProcess(inbox, entry.Name()) {
			continue
		}
		p.processFile(ctx, ep, entry.Name())
	}
}

func matchesExtension(name string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := filepath.Ext(name)
	for _, e := range extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// readyToProcess reports whether a file may be picked up: if a sibling
// "<name>.ready" sentinel exists anywhere alongside an upload convention,
// its absence does not block processing (the sentinel is optional per
// spec §4.9) — but when a writer does drop one, we wait for it so a
// partially-written file is never read mid-upload.
func readyToProcess(dir, name string) bool {
	sentinel := filepath.Join(dir, name+readySentinel)
	if _, err := os.Stat(sentinel); err == nil {
		return true
	} else if os.IsNotExist(err) {
		// No convention in use for this file; check whether ANY sibling
		// in the directory uses the sentinel convention at all. If none
		// do, proceed without one.
		return !anySentinelInUse(dir)
	}
	return false
}

func anySentinelInUse(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), readySentinel) {
			return true
		}
	}
	return false
}

// processFile moves one inbox file into processing, splits it into
// individual messages, runs each through the processor, and finally moves
// the original file to archive on full success or error otherwise.
func (p *Poller) processFile(ctx context.Context, ep Endpoint, name string) {
	inboxPath := filepath.Join(ep.Dir, "inbox", name)
	processingPath := filepath.Join(ep.Dir, "processing", name)

	if err := os.Rename(inboxPath, processingPath); err != nil {
		log.Printf("filepoller: %s: failed to move to processing: %v", name, err)
		return
	}
	os.Remove(filepath.Join(ep.Dir, "inbox", name+readySentinel))

	content, err := os.ReadFile(processingPath)
	if err != nil {
		log.Printf("filepoller: %s: failed to read: %v", name, err)
		p.finish(ep, name, processingPath, false)
		return
	}

	ok := true
	for _, payload := range splitMessages(content) {
		ack := p.processor.Handle(ctx, payload)
		if ack.Code != "AA" {
			log.Printf("filepoller: %s: message rejected: %s (%s)", name, ack.Text, ack.ErrorCode)
			ok = false
		}
	}

	p.finish(ep, name, processingPath, ok)
}

func (p *Poller) finish(ep Endpoint, name, processingPath string, ok bool) {
	dest := "archive"
	if !ok {
		dest = "error"
	}
	destPath := filepath.Join(ep.Dir, dest, name)
	if err := os.Rename(processingPath, destPath); err != nil {
		log.Printf("filepoller: %s: failed to move to %s: %v", name, dest, err)
	}
}

// splitMessages splits a file's contents into individual HL7 messages on
// blank lines, trimming any surrounding whitespace.
func splitMessages(content []byte) [][]byte {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	parts := bytes.Split(normalized, []byte("\n\n"))

	var out [][]byte
	for _, part := range parts {
		trimmed := bytes.TrimSpace(part)
		if len(trimmed) == 0 {
			continue
		}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
