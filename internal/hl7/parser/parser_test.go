package parser

import "testing"

const admissionMsg = "MSH|^~\\&|GAM|900000001|GAM|900000001|20240115103000||ADT^A01^ADT_A01|MSGCTRL001|P|2.5\r" +
	"EVN|A01|20240115103000\r" +
	"PID|1||12345^^^HOSP&1.2.250.1.71.4.2.7&ISO^PI||DOE^JOHN^A||19800101|M|||10 RUE DE LA PAIX^^PARIS^^75001^FR^H\r" +
	"PV1|1|I|SERVICE_A^^^HOSP\r" +
	"ZBE|MVT001^^^HOSP&1.2.250.1.71.4.2.7&ISO|20240115103000||INSERT|N||UF^^^^^^^^^UF01||M"

func TestParseAdmissionMessage(t *testing.T) {
	msg, err := Parse([]byte(admissionMsg))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.MSH.MessageFamily != "ADT" || msg.MSH.Trigger != "A01" {
		t.Errorf("unexpected message type: %+v", msg.MSH)
	}
	if msg.MSH.ControlID != "MSGCTRL001" {
		t.Errorf("unexpected control id: %s", msg.MSH.ControlID)
	}
	if msg.PID == nil || len(msg.PID.Identifiers) != 1 {
		t.Fatalf("expected one PID identifier, got %+v", msg.PID)
	}
	if msg.PID.Identifiers[0].Value != "12345" || msg.PID.Identifiers[0].AuthorityName != "HOSP" {
		t.Errorf("unexpected identifier: %+v", msg.PID.Identifiers[0])
	}
	if len(msg.PID.Names) != 1 || msg.PID.Names[0].Family != "DOE" || msg.PID.Names[0].Given != "JOHN" {
		t.Errorf("unexpected name: %+v", msg.PID.Names)
	}
	if msg.PID.BirthDate == nil || msg.PID.BirthDate.Format("2006-01-02") != "1980-01-01" {
		t.Errorf("unexpected birth date: %v", msg.PID.BirthDate)
	}
	if msg.PV1 == nil || msg.PV1.PatientClass != "I" {
		t.Errorf("unexpected PV1: %+v", msg.PV1)
	}
	if msg.ZBE == nil || msg.ZBE.Action != ZBEInsert || msg.ZBE.Nature != "M" {
		t.Errorf("unexpected ZBE: %+v", msg.ZBE)
	}
	if msg.ZBE.ResponsibilityUF != "UF01" {
		t.Errorf("unexpected responsibility UF: %q", msg.ZBE.ResponsibilityUF)
	}
}

func TestParseMissingMSH9Trigger(t *testing.T) {
	bad := "MSH|^~\\&|GAM|900000001|GAM|900000001|20240115103000||ADT|MSGCTRL002|P|2.5"
	_, err := Parse([]byte(bad))
	if err == nil {
		t.Fatal("expected MissingMSH9 error")
	}
}

func TestParseDateFormats(t *testing.T) {
	if _, err := ParseDate("19800101"); err != nil {
		t.Errorf("ParseDate: %v", err)
	}
	if _, err := ParseDate("1980"); err == nil {
		t.Error("expected DateFormatInvalid for short date")
	}
	if _, err := ParseDateTime("20240115103000"); err != nil {
		t.Errorf("ParseDateTime 14-digit: %v", err)
	}
	if _, err := ParseDateTime("202401151030"); err != nil {
		t.Errorf("ParseDateTime 12-digit: %v", err)
	}
	if _, err := ParseDateTime("2024011"); err == nil {
		t.Error("expected DateFormatInvalid for malformed timestamp")
	}
}

func TestParseZ99Update(t *testing.T) {
	msgText := admissionMsg + "\rZ99|AdminFile|1|uf_housing|UF02"
	msg, err := Parse([]byte(msgText))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(msg.Z99s) != 1 {
		t.Fatalf("expected one Z99 update, got %d", len(msg.Z99s))
	}
	z := msg.Z99s[0]
	if z.Entity != "AdminFile" || z.Field != "uf_housing" || z.Value != "UF02" {
		t.Errorf("unexpected Z99 update: %+v", z)
	}
}

func TestParseMRG(t *testing.T) {
	msgText := "MSH|^~\\&|GAM|900000001|GAM|900000001|20240115103000||ADT^A40^ADT_A39|MSGCTRL003|P|2.5\r" +
		"MRG|99999^^^HOSP&1.2.250.1.71.4.2.7&ISO^PI"
	msg, err := Parse([]byte(msgText))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.MRG == nil || len(msg.MRG.PriorPatientIDs) != 1 || msg.MRG.PriorPatientIDs[0].Value != "99999" {
		t.Errorf("unexpected MRG: %+v", msg.MRG)
	}
}
