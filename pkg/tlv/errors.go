package tlv

import "fmt"

// Kind categorizes the ways a TLV operation can fail, matching the
// fixed taxonomy the protocol core maps to status words.
type Kind int

const (
	// UnsupportedTag means the tag is out of range (> 0xFFFF), or an
	// expected-tag argument requested a width outside {1, 2}.
	UnsupportedTag Kind = iota
	// UnsupportedLength means the length prefix used BER indefinite
	// form (0x80) or an unsupported leading byte (0x84+).
	UnsupportedLength
	// UnexpectedEncoding means a decoded tag did not match the
	// expected tag, or a fixed-width read found the wrong length.
	UnexpectedEncoding
	// UnexpectedEnd means the buffer was exhausted before the
	// operation could complete.
	UnexpectedEnd
	// InvalidSchema means encoded_length/encode was called while a
	// nested scope was still open.
	InvalidSchema
)

func (k Kind) String() string {
	switch k {
	case UnsupportedTag:
		return "UnsupportedTag"
	case UnsupportedLength:
		return "UnsupportedLength"
	case UnexpectedEncoding:
		return "UnexpectedEncoding"
	case UnexpectedEnd:
		return "UnexpectedEnd"
	case InvalidSchema:
		return "InvalidSchema"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the single error type raised by the throwing forms of the
// TLV writer and reader. Every try-form swallows it and returns false.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("tlv: %s: %s", e.Kind, e.Msg)
}

func newErr(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}
