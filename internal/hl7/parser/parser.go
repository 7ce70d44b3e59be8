// Package parser extracts neutral, typed records from tokenized HL7
// segments (spec §4.2): MSH, PID, PV1, ZBE, MRG, EVN, PD1 and Z99.
package parser

import (
	"time"

	"github.com/serbia-gov/platform/internal/hl7/wire"
	"github.com/serbia-gov/platform/internal/hl7err"
)

// CX is a composite identifier: ID^checkdigit^checkschema^AUTHORITY&OID&ISO^type.
type CX struct {
	Value        string
	AuthorityName string
	AuthorityOID string
	Type         string
}

type Name struct {
	Family, Given, Middle, Suffix, Prefix, Type string
}

type Address struct {
	Street, Other, City, State, Zip, Country, Type string
}

type Phone struct {
	Value, Use, Equipment string
}

type MSH struct {
	SendingApp, SendingFacility     string
	ReceivingApp, ReceivingFacility string
	Timestamp                      time.Time
	MessageFamily, Trigger, Structure string
	ControlID, ProcessingID, Version  string
}

type PID struct {
	Identifiers         []CX
	Names               []Name
	BirthDate           *time.Time
	AdministrativeGender string
	Addresses           []Address
	Phones              []Phone
	SSN                 string
	MaritalStatus       string
	MothersMaidenName   string
	BirthPlace          string
	IdentityReliability string
}

type PD1 struct {
	PrimaryCareProvider string
	Religion            string
	Language            string
}

type PV1 struct {
	PatientClass  string
	Location      string
	VisitNumber   *CX
	AdmitTime     *time.Time
	DischargeTime *time.Time
	HospitalService string
}

type ZBEAction string

const (
	ZBEInsert ZBEAction = "INSERT"
	ZBEUpdate ZBEAction = "UPDATE"
	ZBECancel ZBEAction = "CANCEL"
)

type ZBE struct {
	MovementID        CX
	MovementDatetime  *time.Time
	Action            ZBEAction
	CancelFlag        bool
	OriginalTrigger   string
	ResponsibilityCode CX
	ResponsibilityUF  string
	Nature            string
}

type MRG struct {
	PriorPatientIDs []CX
}

type EVN struct {
	EventType         string
	RecordedTimestamp *time.Time
	ReasonCode        string
}

// Z99Update is one inline field-level correction segment:
// Z99|Entity|seq|field|value
type Z99Update struct {
	Entity string
	Seq    string
	Field  string
	Value  string
}

// Message is the parsed, typed view of an HL7 message used by the rest of
// the pipeline (C4 through C7).
type Message struct {
	MSH  MSH
	EVN  *EVN
	PID  *PID
	PD1  *PD1
	PV1  *PV1
	ZBE  *ZBE
	MRG  *MRG
	Z99s []Z99Update
	Raw  *wire.Message
}

// Parse tokenizes payload and extracts every recognized segment into a
// neutral Message.
func Parse(payload []byte) (*Message, error) {
	raw, err := wire.Parse(payload)
	if err != nil {
		return nil, err
	}

	mshSeg := raw.Find("MSH")
	if mshSeg == nil {
		return nil, hl7err.New(hl7err.KindParse, hl7err.CodeMissingMSH, "no MSH segment")
	}
	msh, err := parseMSH(raw, mshSeg)
	if err != nil {
		return nil, err
	}

	msg := &Message{MSH: msh, Raw: raw}

	if seg := raw.Find("EVN"); seg != nil {
		evn, err := parseEVN(raw, seg)
		if err != nil {
			return nil, err
		}
		msg.EVN = evn
	}
	if seg := raw.Find("PID"); seg != nil {
		pid, err := parsePID(raw, seg)
		if err != nil {
			return nil, err
		}
		msg.PID = pid
	}
	if seg := raw.Find("PD1"); seg != nil {
		msg.PD1 = parsePD1(raw, seg)
	}
	if seg := raw.Find("PV1"); seg != nil {
		pv1, err := parsePV1(raw, seg)
		if err != nil {
			return nil, err
		}
		msg.PV1 = pv1
	}
	if seg := raw.Find("ZBE"); seg != nil {
		zbe, err := parseZBE(raw, seg)
		if err != nil {
			return nil, err
		}
		msg.ZBE = zbe
	}
	if seg := raw.Find("MRG"); seg != nil {
		msg.MRG = parseMRG(raw, seg)
	}
	for _, seg := range raw.FindAll("Z99") {
		msg.Z99s = append(msg.Z99s, parseZ99(seg))
	}

	return msg, nil
}

func parseMSH(raw *wire.Message, seg *wire.Segment) (MSH, error) {
	msh := MSH{
		SendingApp:        raw.Unescape(seg.Field(3)),
		SendingFacility:   raw.Unescape(seg.Field(4)),
		ReceivingApp:      raw.Unescape(seg.Field(5)),
		ReceivingFacility: raw.Unescape(seg.Field(6)),
		ControlID:         seg.Field(10),
		ProcessingID:      seg.Field(11),
		Version:           seg.Field(12),
	}
	if ts := seg.Field(7); ts != "" {
		t, err := ParseDateTime(ts)
		if err != nil {
			return MSH{}, err
		}
		msh.Timestamp = t
	}
	msgType := raw.Components(seg.Field(9))
	if len(msgType) > 0 {
		msh.MessageFamily = msgType[0]
	}
	if len(msgType) > 1 {
		msh.Trigger = msgType[1]
	}
	if len(msgType) > 2 {
		msh.Structure = msgType[2]
	}
	if msh.MessageFamily == "" || msh.Trigger == "" {
		return MSH{}, hl7err.New(hl7err.KindParse, hl7err.CodeMissingMSH9,
			"MSH-9 must declare both message family and trigger event")
	}
	if msh.ControlID == "" {
		return MSH{}, hl7err.New(hl7err.KindParse, hl7err.CodeInvalidMSH9,
			"MSH-10 control id must not be empty")
	}
	return msh, nil
}

func parseEVN(raw *wire.Message, seg *wire.Segment) (*EVN, error) {
	evn := &EVN{EventType: seg.Field(1), ReasonCode: seg.Field(4)}
	if ts := seg.Field(2); ts != "" {
		t, err := ParseDateTime(ts)
		if err != nil {
			return nil, err
		}
		evn.RecordedTimestamp = &t
	}
	return evn, nil
}

func parseCX(raw *wire.Message, field string) CX {
	comps := raw.Components(field)
	cx := CX{}
	if len(comps) > 0 {
		cx.Value = raw.Unescape(comps[0])
	}
	if len(comps) > 3 {
		sub := raw.Subcomponents(comps[3])
		if len(sub) > 0 {
			cx.AuthorityName = sub[0]
		}
		if len(sub) > 1 {
			cx.AuthorityOID = sub[1]
		}
	}
	if len(comps) > 4 {
		cx.Type = comps[4]
	}
	return cx
}

func parsePID(raw *wire.Message, seg *wire.Segment) (*PID, error) {
	pid := &PID{
		SSN:                 raw.Unescape(seg.Field(19)),
		MothersMaidenName:   raw.Unescape(seg.Field(6)),
		MaritalStatus:       seg.Field(16),
		IdentityReliability: seg.Field(32),
	}

	for _, rep := range raw.Repetitions(seg.Field(3)) {
		pid.Identifiers = append(pid.Identifiers, parseCX(raw, rep))
	}

	for _, rep := range raw.Repetitions(seg.Field(5)) {
		comps := raw.Components(rep)
		n := Name{}
		if len(comps) > 0 {
			n.Family = raw.Unescape(comps[0])
		}
		if len(comps) > 1 {
			n.Given = raw.Unescape(comps[1])
		}
		if len(comps) > 2 {
			n.Middle = raw.Unescape(comps[2])
		}
		if len(comps) > 3 {
			n.Suffix = comps[3]
		}
		if len(comps) > 4 {
			n.Prefix = comps[4]
		}
		if len(comps) > 6 {
			n.Type = comps[6]
		}
		pid.Names = append(pid.Names, n)
	}

	if bd := seg.Field(7); bd != "" {
		t, err := ParseDate(bd)
		if err != nil {
			return nil, err
		}
		pid.BirthDate = &t
	}

	pid.AdministrativeGender = seg.Field(8)

	for _, rep := range raw.Repetitions(seg.Field(11)) {
		comps := raw.Components(rep)
		a := Address{}
		if len(comps) > 0 {
			a.Street = raw.Unescape(comps[0])
		}
		if len(comps) > 1 {
			a.Other = raw.Unescape(comps[1])
		}
		if len(comps) > 2 {
			a.City = raw.Unescape(comps[2])
		}
		if len(comps) > 3 {
			a.State = comps[3]
		}
		if len(comps) > 4 {
			a.Zip = comps[4]
		}
		if len(comps) > 5 {
			a.Country = comps[5]
		}
		if len(comps) > 6 {
			a.Type = comps[6]
		}
		pid.Addresses = append(pid.Addresses, a)
	}

	for _, rep := range raw.Repetitions(seg.Field(13)) {
		comps := raw.Components(rep)
		p := Phone{}
		if len(comps) > 0 {
			p.Value = comps[0]
		}
		if len(comps) > 1 {
			p.Use = comps[1]
		}
		if len(comps) > 2 {
			p.Equipment = comps[2]
		}
		pid.Phones = append(pid.Phones, p)
	}

	if bp := seg.Field(23); bp != "" {
		pid.BirthPlace = raw.Unescape(bp)
	}

	return pid, nil
}

func parsePD1(raw *wire.Message, seg *wire.Segment) *PD1 {
	return &PD1{
		PrimaryCareProvider: seg.Field(3),
		Religion:            seg.Field(4),
		Language:            seg.Field(6),
	}
}

func parsePV1(raw *wire.Message, seg *wire.Segment) (*PV1, error) {
	// Trailing empty components carry no data: "SERVICE_C^^^" is "SERVICE_C".
	location := seg.Field(3)
	for len(location) > 0 && location[len(location)-1] == raw.Enc.Component {
		location = location[:len(location)-1]
	}
	pv1 := &PV1{
		PatientClass:    seg.Field(2),
		Location:        raw.Unescape(location),
		HospitalService: seg.Field(10),
	}
	if vn := seg.Field(19); vn != "" {
		cx := parseCX(raw, vn)
		pv1.VisitNumber = &cx
	}
	if at := seg.Field(44); at != "" {
		t, err := ParseDateTime(at)
		if err != nil {
			return nil, err
		}
		pv1.AdmitTime = &t
	}
	if dt := seg.Field(45); dt != "" {
		t, err := ParseDateTime(dt)
		if err != nil {
			return nil, err
		}
		pv1.DischargeTime = &t
	}
	return pv1, nil
}

func parseZBE(raw *wire.Message, seg *wire.Segment) (*ZBE, error) {
	zbe := &ZBE{
		OriginalTrigger: seg.Field(6),
		Nature:          seg.Field(9),
	}
	if mid := seg.Field(1); mid != "" {
		zbe.MovementID = parseCX(raw, mid)
		// ZBE-1 may also arrive as an EI: id^authority name^authority oid^ISO.
		if comps := raw.Components(mid); len(comps) > 2 && (comps[1] != "" || comps[2] != "") {
			zbe.MovementID.AuthorityName = comps[1]
			zbe.MovementID.AuthorityOID = comps[2]
		}
	}
	if dt := seg.Field(2); dt != "" {
		t, err := ParseDateTime(dt)
		if err != nil {
			return nil, err
		}
		zbe.MovementDatetime = &t
	}
	switch seg.Field(4) {
	case "INSERT":
		zbe.Action = ZBEInsert
	case "UPDATE":
		zbe.Action = ZBEUpdate
	case "CANCEL":
		zbe.Action = ZBECancel
	}
	zbe.CancelFlag = seg.Field(5) == "Y"
	if rc := seg.Field(7); rc != "" {
		cx := parseCX(raw, rc)
		zbe.ResponsibilityCode = cx
		comps := raw.Components(rc)
		if len(comps) > 9 {
			zbe.ResponsibilityUF = comps[9]
		}
	}
	return zbe, nil
}

func parseMRG(raw *wire.Message, seg *wire.Segment) *MRG {
	mrg := &MRG{}
	for _, rep := range raw.Repetitions(seg.Field(1)) {
		mrg.PriorPatientIDs = append(mrg.PriorPatientIDs, parseCX(raw, rep))
	}
	return mrg
}

func parseZ99(seg *wire.Segment) Z99Update {
	return Z99Update{
		Entity: seg.Field(1),
		Seq:    seg.Field(2),
		Field:  seg.Field(3),
		Value:  seg.Field(4),
	}
}

// ParseDate parses an 8-digit YYYYMMDD HL7 date.
func ParseDate(s string) (time.Time, error) {
	if len(s) < 8 {
		return time.Time{}, hl7err.New(hl7err.KindParse, hl7err.CodeDateFormatInvalid,
			"date must be at least 8 digits (YYYYMMDD)", "value", s)
	}
	t, err := time.Parse("20060102", s[:8])
	if err != nil {
		return time.Time{}, hl7err.Wrap(hl7err.KindParse, hl7err.CodeDateFormatInvalid,
			"invalid YYYYMMDD date", err, "value", s)
	}
	return t, nil
}

// ParseDateTime parses an 8-digit date or a 12/14-digit HL7 timestamp
// (YYYYMMDD[HHMM[SS]]).
func ParseDateTime(s string) (time.Time, error) {
	digits := s
	if i := indexOfNonDigit(s); i >= 0 {
		digits = s[:i]
	}
	switch len(digits) {
	case 8:
		return ParseDate(digits)
	case 12:
		t, err := time.Parse("200601021504", digits)
		if err != nil {
			return time.Time{}, hl7err.Wrap(hl7err.KindParse, hl7err.CodeDateFormatInvalid,
				"invalid YYYYMMDDHHMM timestamp", err, "value", s)
		}
		return t, nil
	case 14:
		t, err := time.Parse("20060102150405", digits)
		if err != nil {
			return time.Time{}, hl7err.Wrap(hl7err.KindParse, hl7err.CodeDateFormatInvalid,
				"invalid YYYYMMDDHHMMSS timestamp", err, "value", s)
		}
		return t, nil
	default:
		return time.Time{}, hl7err.New(hl7err.KindParse, hl7err.CodeDateFormatInvalid,
			"timestamp must be 8, 12 or 14 digits", "value", s)
	}
}

func indexOfNonDigit(s string) int {
	for i, r := range s {
		if r < '0' || r > '9' {
			return i
		}
	}
	return -1
}
