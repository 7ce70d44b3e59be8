package mllp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/hl7/wire"
	"github.com/serbia-gov/platform/internal/hl7err"
)

// ClientConfig tunes the outbound MLLP round trip.
type ClientConfig struct {
	AckTimeout time.Duration // default 30s, spec §4.9
	DialTimeout time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.AckTimeout <= 0 {
		c.AckTimeout = 30 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	return c
}

// Client dispatches outbound messages over MLLP. It satisfies
// emission.Dispatcher structurally: callers never import this package's
// type into emission, only the method signature needs to line up.
type Client struct {
	cfg ClientConfig
}

func NewClient(cfg ClientConfig) *Client {
	return &Client{cfg: cfg.withDefaults()}
}

// Dispatch opens a fresh connection to sub's endpoint, writes the framed
// payload, and awaits an ACK within the configured deadline. One connection
// per call: subscribers are typically intermittently reachable HIS
// integration engines, not a pool worth keeping warm across emissions.
func (c *Client) Dispatch(ctx context.Context, sub *domain.Subscriber, payload []byte) (string, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", sub.Endpoint)
	if err != nil {
		return "", hl7err.Wrap(hl7err.KindSubscriber, hl7err.CodeConnectionRefused,
			fmt.Sprintf("failed to connect to subscriber %s", sub.Name), err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.AckTimeout)); err != nil {
		return "", hl7err.Wrap(hl7err.KindSubscriber, hl7err.CodeSendTimeout, "failed to set write deadline", err)
	}
	if err := wire.WriteFrame(conn, payload); err != nil {
		return "", hl7err.Wrap(hl7err.KindSubscriber, hl7err.CodeConnectionRefused,
			fmt.Sprintf("failed to write to subscriber %s", sub.Name), err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.AckTimeout)); err != nil {
		return "", hl7err.Wrap(hl7err.KindSubscriber, hl7err.CodeSendTimeout, "failed to set read deadline", err)
	}
	ackFrame, err := wire.ReadFrame(bufio.NewReader(conn))
	if err != nil {
		if isTimeout(err) {
			return "", hl7err.New(hl7err.KindSubscriber, hl7err.CodeSendTimeout,
				fmt.Sprintf("subscriber %s did not acknowledge within %s", sub.Name, c.cfg.AckTimeout))
		}
		return "", hl7err.Wrap(hl7err.KindSubscriber, hl7err.CodeConnectionRefused,
			fmt.Sprintf("failed to read ACK from subscriber %s", sub.Name), err)
	}

	msg, err := wire.Parse(ackFrame)
	if err != nil {
		return "", hl7err.Wrap(hl7err.KindSubscriber, hl7err.CodeAckNotAA,
			fmt.Sprintf("subscriber %s returned an unparseable ACK", sub.Name), err)
	}
	msa := msg.Find("MSA")
	if msa == nil {
		return "", hl7err.New(hl7err.KindSubscriber, hl7err.CodeAckNotAA,
			fmt.Sprintf("subscriber %s ACK has no MSA segment", sub.Name))
	}

	return msa.Field(1), nil
}
