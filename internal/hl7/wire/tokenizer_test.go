package wire

import "testing"

const sampleMSH = "MSH|^~\\&|GAM|900000001|GAM|900000001|20240115103000||ADT^A01^ADT_A01|MSGCTRL001|P|2.5"

func TestParseExtractsEncodingChars(t *testing.T) {
	msg, err := Parse([]byte(sampleMSH))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Enc.Field != '|' || msg.Enc.Component != '^' || msg.Enc.Repetition != '~' ||
		msg.Enc.Escape != '\\' || msg.Enc.Subcomponent != '&' {
		t.Errorf("unexpected encoding chars: %+v", msg.Enc)
	}
}

func TestParseRejectsNonMSHFirstSegment(t *testing.T) {
	_, err := Parse([]byte("PID|1||12345"))
	if err == nil {
		t.Fatal("expected MissingMSH error")
	}
}

func TestParseSegmentFields(t *testing.T) {
	payload := sampleMSH + "\rPID|1||12345^^^HOSP&1.2.3.4&ISO^PI||DOE^JOHN^A||19800101|M"
	msg, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	pid := msg.Find("PID")
	if pid == nil {
		t.Fatal("expected PID segment")
	}
	if pid.Field(5) != "DOE^JOHN^A" {
		t.Errorf("unexpected PID-5: %q", pid.Field(5))
	}
	comps := msg.Components(pid.Field(5))
	if len(comps) != 3 || comps[0] != "DOE" || comps[1] != "JOHN" {
		t.Errorf("unexpected name components: %v", comps)
	}
}

func TestRepetitionsAndSubcomponents(t *testing.T) {
	msg, err := Parse([]byte(sampleMSH))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	reps := msg.Repetitions("A~B~C")
	if len(reps) != 3 {
		t.Errorf("expected 3 repetitions, got %d", len(reps))
	}
	subs := msg.Subcomponents("HOSP&1.2.3.4&ISO")
	if len(subs) != 3 || subs[1] != "1.2.3.4" {
		t.Errorf("unexpected subcomponents: %v", subs)
	}
}

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	msg, err := Parse([]byte(sampleMSH))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	original := "DUPONT & FILS | SERVICE^A"
	escaped := msg.Escape(original)
	roundTripped := msg.Unescape(escaped)
	if roundTripped != original {
		t.Errorf("escape/unescape round trip mismatch: got %q want %q", roundTripped, original)
	}
}

func TestEmptyFieldsPreserved(t *testing.T) {
	payload := sampleMSH + "\rPID|1||12345|||DOE"
	msg, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	pid := msg.Find("PID")
	if pid.Field(4) != "" {
		t.Errorf("expected empty PID-4, got %q", pid.Field(4))
	}
	if pid.Field(6) != "DOE" {
		t.Errorf("expected PID-6 DOE, got %q", pid.Field(6))
	}
}
