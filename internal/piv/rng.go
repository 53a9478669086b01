package piv

import (
	"crypto/rand"

	"github.com/google/uuid"
)

// RNG supplies the random bytes behind SetRandomGuid/SetRandomCardID.
// Per spec.md §9 ("Global pluggable RNG"), this is injected into the
// handler constructor rather than reached for as process-wide state.
type RNG interface {
	// GUID returns a freshly generated 16-byte card GUID.
	GUID() ([16]byte, error)
	// CardID returns a freshly generated 14-byte CCC CardID.
	CardID() ([14]byte, error)
}

// systemRNG is the default RNG, backed by crypto/rand. GUIDs are
// shaped as RFC 4122 version 4 UUIDs via google/uuid so the bytes are
// a valid GUID by any downstream reader that inspects the version
// nibble, not just 16 opaque random bytes.
type systemRNG struct{}

// DefaultRNG is the RNG used when a handler is constructed without an
// explicit override.
var DefaultRNG RNG = systemRNG{}

func (systemRNG) GUID() ([16]byte, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return [16]byte{}, err
	}
	var out [16]byte
	copy(out[:], id[:])
	return out, nil
}

func (systemRNG) CardID() ([14]byte, error) {
	var out [14]byte
	if _, err := rand.Read(out[:]); err != nil {
		return [14]byte{}, err
	}
	return out, nil
}
