package piv

import "fmt"

// Kind classifies a PIV data-object failure, mirroring the taxonomy
// pkg/tlv uses for the codec layer (spec.md §7 keeps these as a
// separate family from the TLV/APDU Kind set).
type Kind int

const (
	// InvalidDataTag means a data-object tag fell outside the valid
	// alternate-tag range and did not equal the object's defined tag.
	InvalidDataTag Kind = iota
	// SigningPrecondition means the data given to the RSA signer did
	// not match the key's modulus length.
	SigningPrecondition
)

func (k Kind) String() string {
	switch k {
	case InvalidDataTag:
		return "InvalidDataTag"
	case SigningPrecondition:
		return "SigningPrecondition"
	default:
		return "Unknown"
	}
}

// Error is the typed error data objects raise for schema violations.
// The card handler never lets one escape process_apdu: every Error is
// caught at the dispatch boundary and reduced to a status word.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newErr(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}
