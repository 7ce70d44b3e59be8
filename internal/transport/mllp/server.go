// Package mllp implements the MLLP server and client transport (C9):
// concurrent connection handling with a per-endpoint circuit breaker on
// the inbound side, and a deadline-bound ACK round trip on the outbound
// side (spec §4.9).
package mllp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/serbia-gov/platform/internal/hl7/wire"
	"github.com/serbia-gov/platform/internal/hl7err"
	"github.com/serbia-gov/platform/internal/inbound"
)

// Processor runs the inbound pipeline for one deframed payload. Satisfied
// structurally by *inbound.Handler; kept local so this package does not
// import inbound's internals beyond the Ack it already renders for us.
type Processor interface {
	Handle(ctx context.Context, payload []byte) inbound.Ack
}

// Config tunes one MLLP listener.
type Config struct {
	IdleTimeout      time.Duration // default 60s, spec §4.9
	BreakerThreshold int           // default 20 consecutive non-AA acks
	BreakerCooldown  time.Duration // default 60s
	FrameRateLimit   rate.Limit    // default 50/s per connection
	FrameBurst       int           // default 100
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 20
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 60 * time.Second
	}
	if c.FrameRateLimit <= 0 {
		c.FrameRateLimit = 50
	}
	if c.FrameBurst <= 0 {
		c.FrameBurst = 100
	}
	return c
}

// Server accepts MLLP connections on one or more addresses and feeds every
// deframed message to a Processor, framing and writing back the ACK it
// returns.
type Server struct {
	processor Processor
	cfg       Config

	mu        sync.Mutex
	listeners []net.Listener
	breakers  map[net.Listener]*circuitBreaker
	wg        sync.WaitGroup
}

func New(processor Processor, cfg Config) *Server {
	return &Server{
		processor: processor,
		cfg:       cfg.withDefaults(),
		breakers:  make(map[net.Listener]*circuitBreaker),
	}
}

// Listen starts accepting connections on addr. Each listener gets its own
// circuit breaker, tracking consecutive non-AA acknowledgments across every
// connection it has accepted (spec's "per-endpoint error counter").
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listeners = append(s.listeners, ln)
	s.breakers[ln] = newCircuitBreaker(s.cfg.BreakerThreshold, s.cfg.BreakerCooldown)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Stop closes every listener and waits for in-flight connections to drain.
func (s *Server) Stop() {
	s.mu.Lock()
	for _, ln := range s.listeners {
		ln.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	breaker := s.breakers[ln]

	for {
		conn, err := ln.Accept()
		if err != nil {
			return // listener closed by Stop
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn, breaker)
		}()
	}
}

// handleConn runs the per-connection loop of spec §4.9: read, deframe,
// process, frame the ACK, write. The connection stays open across many
// messages; it closes only on idle timeout, EOF, or a wire-level error.
func (s *Server) handleConn(conn net.Conn, breaker *circuitBreaker) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	limiter := rate.NewLimiter(s.cfg.FrameRateLimit, s.cfg.FrameBurst)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
			return
		}

		frame, err := wire.ReadFrame(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if isTimeout(err) {
				log.Printf("mllp: %s: idle timeout, closing connection", conn.RemoteAddr())
				return
			}
			log.Printf("mllp: %s: %v", conn.RemoteAddr(), err)
			// A wire-level failure (e.g. an oversize frame, spec scenario
			// S6) never reaches the processor, so no persistence happens;
			// still send back a rejecting ACK before closing, since the
			// sender is waiting on one.
			if ge, ok := hl7err.As(err); ok {
				ack := inbound.Ack{Code: hl7err.AckCodeFor(err), ControlID: "", Text: ge.Code, ErrorCode: ge.Code}
				conn.Write(ack.Frame(time.Now()))
			}
			return
		}

		if err := limiter.Wait(context.Background()); err != nil {
			return
		}

		if breaker.open() {
			log.Printf("mllp: %s: circuit breaker open, dropping frame", conn.RemoteAddr())
			continue
		}

		ack := s.processor.Handle(context.Background(), frame)
		breaker.record(ack.Code == hl7err.AckAA)

		if _, err := conn.Write(ack.Frame(time.Now())); err != nil {
			log.Printf("mllp: %s: failed to write ACK: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// circuitBreaker trips after a run of consecutive non-AA acknowledgments
// and stays open until its cooldown rate.Limiter yields a fresh token.
type circuitBreaker struct {
	threshold int
	cooldown  time.Duration

	mu          sync.Mutex
	consecutive int
	limiter     *rate.Limiter
}

func newCircuitBreaker(threshold int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, cooldown: cooldown}
}

// open reports whether the breaker is currently tripped. A tripped breaker
// with an elapsed cooldown closes itself and allows the next frame through.
func (b *circuitBreaker) open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limiter == nil {
		return false
	}
	if b.limiter.Allow() {
		b.limiter = nil
		b.consecutive = 0
		return false
	}
	return true
}

func (b *circuitBreaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ok {
		b.consecutive = 0
		return
	}
	b.consecutive++
	if b.consecutive >= b.threshold && b.limiter == nil {
		b.limiter = rate.NewLimiter(rate.Every(b.cooldown), 1)
		b.limiter.Allow() // consume the initial burst so the next Allow only succeeds after cooldown elapses
	}
}
