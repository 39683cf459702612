// Package dnserr defines the typed error taxonomy returned by every
// dnssector component. Every operation that can fail returns an *Error
// so FFI-style callers can switch on a stable Kind instead of parsing
// message text.
package dnserr

import "fmt"

// Kind identifies the category of failure. The zero value is never
// returned by a real error.
type Kind uint8

const (
	// KindPacketTooSmall means the buffer is shorter than the 12-byte header.
	KindPacketTooSmall Kind = iota + 1
	// KindPacketTooLarge means the buffer exceeds the configured maximum.
	KindPacketTooLarge
	// KindUnsupportedClass means an RR class outside the set this toolkit
	// understands; no current operation returns it.
	KindUnsupportedClass
	// KindUnsupportedRRType means an RR type has no presentation-format
	// rdata builder (rrtext.BuildRR).
	KindUnsupportedRRType
	// KindInternal means an invariant the code itself should have prevented was violated.
	KindInternal
	// KindInvalidName means a name failed compression-pointer or label validation.
	KindInvalidName
	// KindInvalidPacket means the packet's structure (counts, section boundaries) is malformed.
	KindInvalidPacket
	// KindVoidRecord means a cursor was used after its record was deleted (a tombstone).
	KindVoidRecord
	// KindPropertyNotFound means an optional field (e.g. an EDNS option) was requested but absent.
	KindPropertyNotFound
	// KindWrongAddressFamily means an IP accessor was used against an RR of the other address family.
	KindWrongAddressFamily
	// KindParseError means a presentation-format string failed to parse.
	KindParseError
	// KindExhausted means a cursor was advanced, read, or mutated past its terminal state.
	KindExhausted
)

func (k Kind) String() string {
	switch k {
	case KindPacketTooSmall:
		return "PacketTooSmall"
	case KindPacketTooLarge:
		return "PacketTooLarge"
	case KindUnsupportedClass:
		return "UnsupportedClass"
	case KindUnsupportedRRType:
		return "UnsupportedRRType"
	case KindInternal:
		return "Internal"
	case KindInvalidName:
		return "InvalidName"
	case KindInvalidPacket:
		return "InvalidPacket"
	case KindVoidRecord:
		return "VoidRecord"
	case KindPropertyNotFound:
		return "PropertyNotFound"
	case KindWrongAddressFamily:
		return "WrongAddressFamily"
	case KindParseError:
		return "ParseError"
	case KindExhausted:
		return "Exhausted"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
}

// Error is the concrete error type every dnssector package returns.
type Error struct {
	Kind   Kind
	Detail string
	// Wrapped, when set, lets callers still use errors.Is/errors.As against
	// an underlying cause (e.g. a presentation-format parse failure).
	Wrapped error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// New constructs an *Error of the given kind with a formatted detail.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error of the given kind that also carries an
// underlying cause for errors.Is/errors.As.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Wrapped: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ae, ok := err.(*Error); ok {
		e = ae
	} else {
		return false
	}
	return e.Kind == kind
}
