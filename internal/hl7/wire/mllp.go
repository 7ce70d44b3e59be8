// Package wire implements MLLP framing and HL7 v2 segment/field/component
// tokenization (spec §4.1).
package wire

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/serbia-gov/platform/internal/hl7err"
)

const (
	StartBlock = 0x0B // <SB>
	EndBlock   = 0x1C // <EB>
	CarriageReturn = 0x0D
)

// MaxFrameSize bounds a single MLLP payload; frames larger than this fail
// with FrameOversize (spec §8 scenario S6).
const MaxFrameSize = 1 << 20 // 1 MiB

// ReadFrame reads one MLLP-framed payload from r: discards bytes preceding
// <SB>, captures bytes until <EB>, consumes the trailing <CR>. Returns
// io.EOF when the stream ends cleanly between frames, or a *hl7err.GatewayError
// (FrameTruncated/FrameOversize) on malformed input.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	// discard everything up to and including the start block
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, err
		}
		if b == StartBlock {
			break
		}
	}

	var buf bytes.Buffer
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil, hl7err.New(hl7err.KindWire, hl7err.CodeFrameTruncated,
					"MLLP frame truncated before end block")
			}
			return nil, err
		}
		if b == EndBlock {
			break
		}
		if buf.Len() >= MaxFrameSize {
			return nil, hl7err.New(hl7err.KindWire, hl7err.CodeFrameOversize,
				fmt.Sprintf("MLLP frame exceeds maximum size of %d bytes", MaxFrameSize))
		}
		buf.WriteByte(b)
	}

	// consume the trailing CR if present; some senders omit it
	if b, err := r.Peek(1); err == nil && len(b) == 1 && b[0] == CarriageReturn {
		_, _ = r.Discard(1)
	}

	return buf.Bytes(), nil
}

// Frame wraps a payload in <SB>...<EB><CR>.
func Frame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+3)
	out = append(out, StartBlock)
	out = append(out, payload...)
	out = append(out, EndBlock, CarriageReturn)
	return out
}

// WriteFrame frames and writes a payload to w.
func WriteFrame(w io.Writer, payload []byte) error {
	_, err := w.Write(Frame(payload))
	return err
}
