package mllp

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/serbia-gov/platform/internal/hl7/wire"
	"github.com/serbia-gov/platform/internal/hl7err"
	"github.com/serbia-gov/platform/internal/inbound"
)

type fakeProcessor struct {
	ack inbound.Ack
}

func (p *fakeProcessor) Handle(context.Context, []byte) inbound.Ack {
	return p.ack
}

func dialLocal(t *testing.T, ln net.Listener) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestServerRoundTripsAck(t *testing.T) {
	processor := &fakeProcessor{ack: inbound.Ack{Code: hl7err.AckAA, ControlID: "1", Text: "ok"}}
	srv := New(processor, Config{IdleTimeout: time.Second})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv.mu.Lock()
	srv.listeners = append(srv.listeners, ln)
	srv.breakers[ln] = newCircuitBreaker(srv.cfg.BreakerThreshold, srv.cfg.BreakerCooldown)
	srv.mu.Unlock()
	srv.wg.Add(1)
	go srv.acceptLoop(ln)
	defer srv.Stop()

	conn := dialLocal(t, ln)
	defer conn.Close()

	if err := wire.WriteFrame(conn, []byte("MSH|^~\\&|A|B|C|D|20240101||ADT^A01^ADT_A01|1|P|2.5")); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := wire.ReadFrame(bufio.NewReader(conn))
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}

	msg, err := wire.Parse(reply)
	if err != nil {
		t.Fatalf("parse ack: %v", err)
	}
	msa := msg.Find("MSA")
	if msa == nil || msa.Field(1) != string(hl7err.AckAA) {
		t.Fatalf("expected MSA-1 AA, got %+v", msa)
	}
}

func TestServerRejectsOversizeFrameWithAck(t *testing.T) {
	processor := &fakeProcessor{ack: inbound.Ack{Code: hl7err.AckAA, ControlID: "1", Text: "ok"}}
	srv := New(processor, Config{IdleTimeout: 2 * time.Second})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv.mu.Lock()
	srv.listeners = append(srv.listeners, ln)
	srv.breakers[ln] = newCircuitBreaker(srv.cfg.BreakerThreshold, srv.cfg.BreakerCooldown)
	srv.mu.Unlock()
	srv.wg.Add(1)
	go srv.acceptLoop(ln)
	defer srv.Stop()

	conn := dialLocal(t, ln)
	defer conn.Close()

	oversize := make([]byte, wire.MaxFrameSize+10)
	for i := range oversize {
		oversize[i] = 'A'
	}
	if err := wire.WriteFrame(conn, oversize); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := wire.ReadFrame(bufio.NewReader(conn))
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}

	msg, err := wire.Parse(reply)
	if err != nil {
		t.Fatalf("parse ack: %v", err)
	}
	msa := msg.Find("MSA")
	if msa == nil || msa.Field(1) != string(hl7err.AckAR) {
		t.Fatalf("expected MSA-1 AR, got %+v", msa)
	}
	err3 := msg.Find("ERR")
	if err3 == nil || err3.Field(4) == "" {
		t.Fatalf("expected ERR-4 to carry the FrameOversize code, got %+v", err3)
	}
}

func TestCircuitBreakerTripsAfterConsecutiveErrors(t *testing.T) {
	b := newCircuitBreaker(3, 50*time.Millisecond)

	for i := 0; i < 2; i++ {
		b.record(false)
		if b.open() {
			t.Fatalf("breaker should not be open after %d errors", i+1)
		}
	}
	b.record(false)
	if !b.open() {
		t.Fatal("expected breaker to be open after reaching threshold")
	}

	time.Sleep(100 * time.Millisecond)
	if b.open() {
		t.Fatal("expected breaker to close after cooldown elapses")
	}
}

func TestCircuitBreakerResetsOnSuccess(t *testing.T) {
	b := newCircuitBreaker(2, time.Second)
	b.record(false)
	b.record(true)
	b.record(false)
	if b.open() {
		t.Fatal("a single consecutive error after a success must not trip the breaker")
	}
}
