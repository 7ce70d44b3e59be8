package mllp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/hl7/wire"
	"github.com/serbia-gov/platform/internal/hl7err"
	"github.com/serbia-gov/platform/internal/shared/types"
)

// startEchoServer accepts one connection, reads a frame, and replies with
// the given ACK code in an MSA segment.
func startEchoServer(t *testing.T, ackCode string, delay time.Duration) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		if _, err := wire.ReadFrame(bufio.NewReader(conn)); err != nil {
			return
		}
		if delay > 0 {
			time.Sleep(delay)
		}
		ack := fmt.Sprintf("MSH|^~\\&|SUB|SUB|GATEWAY|GATEWAY|20240101120000||ACK|1|P|2.5\rMSA|%s|1", ackCode)
		wire.WriteFrame(conn, []byte(ack))
	}()
	return ln
}

func TestClientDispatchReturnsAckCode(t *testing.T) {
	ln := startEchoServer(t, "AA", 0)
	defer ln.Close()

	client := NewClient(ClientConfig{AckTimeout: time.Second})
	sub := &domain.Subscriber{ID: types.NewID(), Name: "test", Endpoint: ln.Addr().String()}

	ackCode, err := client.Dispatch(context.Background(), sub, []byte("MSH|^~\\&|A|B|C|D|20240101||ADT^A01^ADT_A01|1|P|2.5"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if ackCode != "AA" {
		t.Errorf("expected AA, got %q", ackCode)
	}
}

func TestClientDispatchTimesOutWithoutReply(t *testing.T) {
	ln := startEchoServer(t, "AA", 200*time.Millisecond)
	defer ln.Close()

	client := NewClient(ClientConfig{AckTimeout: 20 * time.Millisecond})
	sub := &domain.Subscriber{ID: types.NewID(), Name: "test", Endpoint: ln.Addr().String()}

	_, err := client.Dispatch(context.Background(), sub, []byte("MSH|^~\\&|A|B|C|D|20240101||ADT^A01^ADT_A01|1|P|2.5"))
	ge, ok := hl7err.As(err)
	if !ok {
		t.Fatalf("expected *GatewayError, got %v", err)
	}
	if ge.Code != hl7err.CodeSendTimeout {
		t.Errorf("expected SendTimeout, got %s", ge.Code)
	}
}

func TestClientDispatchConnectionRefused(t *testing.T) {
	client := NewClient(ClientConfig{})
	sub := &domain.Subscriber{ID: types.NewID(), Name: "down", Endpoint: "127.0.0.1:1"}

	_, err := client.Dispatch(context.Background(), sub, []byte("MSH|^~\\&|A|B|C|D|20240101||ADT^A01^ADT_A01|1|P|2.5"))
	ge, ok := hl7err.As(err)
	if !ok {
		t.Fatalf("expected *GatewayError, got %v", err)
	}
	if ge.Code != hl7err.CodeConnectionRefused {
		t.Errorf("expected ConnectionRefused, got %s", ge.Code)
	}
}
