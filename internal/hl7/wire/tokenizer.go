package wire

import (
	"strings"

	"github.com/serbia-gov/platform/internal/hl7err"
)

// EncodingChars holds the five HL7 separators declared in MSH-1/MSH-2.
type EncodingChars struct {
	Field        byte // MSH-1, literally '|'
	Component    byte // MSH-2 char 1, default '^'
	Repetition   byte // MSH-2 char 2, default '~'
	Escape       byte // MSH-2 char 3, default '\'
	Subcomponent byte // MSH-2 char 4, default '&'
}

// DefaultEncodingChars is the standard `|^~\&` French HL7 separator set.
var DefaultEncodingChars = EncodingChars{
	Field:        '|',
	Component:    '^',
	Repetition:   '~',
	Escape:       '\\',
	Subcomponent: '&',
}

// Message is a tokenized HL7 payload: an ordered list of segments, each a
// list of raw field strings (still escaped; field 0 is the segment id).
type Message struct {
	Segments []Segment
	Enc      EncodingChars
}

// Segment is one HL7 segment: an id (e.g. "PID") and its raw fields.
// For MSH, Fields[0] is "MSH" and the encoding characters occupy Fields[1]
// (literally the field separator) — callers use Enc, not Fields[1], to read
// separators, matching the HL7 convention that MSH-1 IS the separator.
type Segment struct {
	ID     string
	Fields []string
}

// Parse splits a deframed HL7 payload into segments, validates that the
// first segment is MSH, and extracts the encoding characters from MSH-2.
func Parse(payload []byte) (*Message, error) {
	raw := strings.ReplaceAll(string(payload), "\n", "")
	segments := strings.Split(raw, string(rune(CarriageReturn)))

	var nonEmpty []string
	for _, s := range segments {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) == 0 || !strings.HasPrefix(nonEmpty[0], "MSH") {
		return nil, hl7err.New(hl7err.KindParse, hl7err.CodeMissingMSH,
			"message does not begin with an MSH segment")
	}

	mshRaw := nonEmpty[0]
	if len(mshRaw) < 4 {
		return nil, hl7err.New(hl7err.KindParse, hl7err.CodeMissingMSH, "MSH segment too short")
	}
	fieldSep := mshRaw[3]
	enc := DefaultEncodingChars
	enc.Field = fieldSep

	// MSH-2 is the 4 chars immediately after MSH-1 (the field separator itself).
	rest := mshRaw[4:]
	encEnd := strings.IndexByte(rest, fieldSep)
	var encChars string
	if encEnd >= 0 {
		encChars = rest[:encEnd]
	} else {
		encChars = rest
	}
	if len(encChars) >= 4 {
		enc.Component = encChars[0]
		enc.Repetition = encChars[1]
		enc.Escape = encChars[2]
		enc.Subcomponent = encChars[3]
	}

	msg := &Message{Enc: enc}
	for i, raw := range nonEmpty {
		id := raw
		if idx := strings.IndexByte(raw, fieldSep); idx >= 0 {
			id = raw[:idx]
		}
		var fields []string
		if i == 0 {
			// MSH: field 1 is the separator itself; reconstruct the field
			// list so that Fields[1] == "|" and Fields[2] == the 4-char
			// encoding set, preserving HL7's off-by-one MSH numbering.
			fields = []string{id, string(fieldSep), encChars}
			if encEnd >= 0 && encEnd+1 <= len(rest) {
				tail := rest[encEnd+1:]
				if tail != "" {
					fields = append(fields, splitField(tail, fieldSep)...)
				}
			}
		} else {
			fields = strings.Split(raw, string(fieldSep))
		}
		msg.Segments = append(msg.Segments, Segment{ID: id, Fields: fields})
	}

	return msg, nil
}

func splitField(s string, sep byte) []string {
	return strings.Split(s, string(sep))
}

// Field returns the raw (still-escaped) value of field index idx of a
// segment, or "" if absent. idx is 1-based per HL7 convention (Field(0) is
// the segment id for non-MSH segments).
func (s Segment) Field(idx int) string {
	if idx < 0 || idx >= len(s.Fields) {
		return ""
	}
	return s.Fields[idx]
}

// Repetitions splits a field's raw value on the repetition separator.
func (m *Message) Repetitions(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, string(m.Enc.Repetition))
}

// Components splits a field repetition into components.
func (m *Message) Components(raw string) []string {
	return strings.Split(raw, string(m.Enc.Component))
}

// Subcomponents splits a component into subcomponents.
func (m *Message) Subcomponents(raw string) []string {
	return strings.Split(raw, string(m.Enc.Subcomponent))
}

// Unescape decodes the standard HL7 escape sequences (\F\ \S\ \T\ \R\ \E\)
// back to their literal separator characters.
func (m *Message) Unescape(s string) string {
	if !strings.ContainsRune(s, rune(m.Enc.Escape)) {
		return s
	}
	esc := string(m.Enc.Escape)
	r := strings.NewReplacer(
		esc+"F"+esc, string(m.Enc.Field),
		esc+"S"+esc, string(m.Enc.Component),
		esc+"T"+esc, string(m.Enc.Subcomponent),
		esc+"R"+esc, string(m.Enc.Repetition),
		esc+"E"+esc, esc,
	)
	return r.Replace(s)
}

// Escape encodes literal separator characters into HL7 escape sequences,
// the inverse of Unescape, used by the generator (C7).
func (m *Message) Escape(s string) string {
	esc := string(m.Enc.Escape)
	r := strings.NewReplacer(
		esc, esc+"E"+esc,
		string(m.Enc.Field), esc+"F"+esc,
		string(m.Enc.Component), esc+"S"+esc,
		string(m.Enc.Subcomponent), esc+"T"+esc,
		string(m.Enc.Repetition), esc+"R"+esc,
	)
	return r.Replace(s)
}

// Find returns the first segment with the given id, or nil.
func (m *Message) Find(id string) *Segment {
	for i := range m.Segments {
		if m.Segments[i].ID == id {
			return &m.Segments[i]
		}
	}
	return nil
}

// FindAll returns all segments with the given id, in order.
func (m *Message) FindAll(id string) []*Segment {
	var out []*Segment
	for i := range m.Segments {
		if m.Segments[i].ID == id {
			out = append(out, &m.Segments[i])
		}
	}
	return out
}
