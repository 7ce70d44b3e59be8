// Package hl7err defines the error taxonomy for the HL7/PAM ingestion and
// emission pipeline: every error carries a kind, a stable code, a
// human-readable message and an ACK code it maps to.
package hl7err

import "fmt"

// Kind classifies a GatewayError into one of the categories the inbound
// handler and emission engine treat differently.
type Kind string

const (
	KindWire       Kind = "wire"
	KindParse      Kind = "parse"
	KindSemantic   Kind = "semantic"
	KindTransient  Kind = "transient"
	KindSubscriber Kind = "subscriber"
)

// Stable error codes, referenced by spec §7 and by tests.
const (
	CodeFrameTruncated  = "FrameTruncated"
	CodeFrameOversize   = "FrameOversize"
	CodeUnknownEncoding = "UnknownEncoding"

	CodeMissingMSH          = "MissingMSH"
	CodeMissingMSH9         = "MissingMSH9"
	CodeInvalidMSH9         = "InvalidMSH9"
	CodeUnknownSegment      = "UnknownSegment"
	CodeDateFormatInvalid   = "DateFormatInvalid"
	CodeFieldCountMismatch  = "FieldCountMismatch"
	CodeMissingPV1          = "MissingPV1"

	CodeUnsupportedTrigger       = "UnsupportedTrigger"
	CodeInvalidTransition        = "InvalidTransition"
	CodeInvalidClassChange       = "InvalidClassChange"
	CodeInvalidCorrectionContext = "InvalidCorrectionContext"
	CodeAmbiguousIdentity        = "AmbiguousIdentity"
	CodeMissingZBE               = "MissingZBE"
	CodeMissingMRG                = "MissingMRG"
	CodeInvalidZ99Target          = "InvalidZ99Target"
	CodeStrictModeBlocked         = "StrictModeBlocked"
	CodeMergeSegmentMissing       = "MergeSegmentMissing"

	CodeSequenceAllocationConflict    = "SequenceAllocationConflict"
	CodeTransactionSerializationFailure = "TransactionSerializationFailure"

	CodeGeneratorError    = "GeneratorError"
	CodeSendTimeout       = "SendTimeout"
	CodeAckNotAA          = "AckNotAA"
	CodeConnectionRefused = "ConnectionRefused"
)

// GatewayError is the error type propagated through the ingestion pipeline.
type GatewayError struct {
	Kind    Kind
	Code    string
	Message string
	Context map[string]string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// New builds a GatewayError with optional context pairs (key, value, key, value...).
func New(kind Kind, code, message string, kv ...string) *GatewayError {
	ctx := map[string]string{}
	for i := 0; i+1 < len(kv); i += 2 {
		ctx[kv[i]] = kv[i+1]
	}
	return &GatewayError{Kind: kind, Code: code, Message: message, Context: ctx}
}

// Wrap attaches an underlying error to a GatewayError.
func Wrap(kind Kind, code, message string, err error, kv ...string) *GatewayError {
	ge := New(kind, code, message, kv...)
	ge.Err = err
	return ge
}

// AckCode is the HL7 MSA-1 acknowledgment code.
type AckCode string

const (
	AckAA AckCode = "AA" // Application Accept
	AckAE AckCode = "AE" // Application Error
	AckAR AckCode = "AR" // Application Reject (retry)
)

// AckCodeFor maps an error's Kind to the ACK code the inbound handler must
// return. A nil error maps to AA.
func AckCodeFor(err error) AckCode {
	if err == nil {
		return AckAA
	}
	ge, ok := err.(*GatewayError)
	if !ok {
		return AckAE
	}
	switch ge.Kind {
	case KindWire, KindTransient:
		return AckAR
	case KindParse, KindSemantic:
		return AckAE
	default:
		return AckAE
	}
}

// As reports whether err is a *GatewayError and returns it.
func As(err error) (*GatewayError, bool) {
	ge, ok := err.(*GatewayError)
	return ge, ok
}
