package piv

import (
	"bytes"

	"github.com/pivert/pivert/pkg/tlv"
)

// fascN is the canonical 25-byte FASC-N every emulated CHUID carries,
// matching the non-federal-issuer pattern spec.md §4 requires
// bit-exact. The emulator never issues a different FASC-N: the host
// is expected to key off the GUID, not the FASC-N, to distinguish
// cards.
var fascN = [25]byte{
	0xD4, 0xE7, 0x39, 0xDA, 0x73, 0x9C, 0xE7, 0x39,
	0xCE, 0x73, 0x9C, 0xE7, 0x39, 0xCE, 0x73, 0x9C,
	0xE7, 0x39, 0xCE, 0x73, 0x9C, 0xE7, 0x39, 0xCE,
	0x3E,
}

// expirationDate is the fixed CHUID expiration string, "20300101".
const expirationDate = "20300101"

const (
	chuidContainerTag = 0x53
	chuidFascNTag     = 0x30
	chuidGUIDTag      = 0x34
	chuidExpiryTag    = 0x35
	chuidSignatureTag = 0x3E
	chuidLRCTag       = 0xFE
)

// CHUID is the Cardholder Unique Identifier data object (spec.md §3,
// §4.4). The only mutable field is the GUID; every other field is a
// fixed constant once populated.
type CHUID struct {
	dataTag uint32
	guid    [16]byte
	set     bool
}

// NewCHUID constructs an empty CHUID stored at the PIV-defined tag.
func NewCHUID() *CHUID {
	return &CHUID{dataTag: TagCHUID}
}

// IsEmpty reports whether the object has not yet had its GUID set.
func (c *CHUID) IsEmpty() bool { return !c.set }

// DataTag returns the storage locator this instance answers GET DATA
// requests under.
func (c *CHUID) DataTag() uint32 { return c.dataTag }

// DefinedDataTag is the immutable PIV-defined tag for CHUID.
func (c *CHUID) DefinedDataTag() uint32 { return TagCHUID }

// SetDataTag relocates the object to an alternate valid tag.
func (c *CHUID) SetDataTag(tag uint32) error {
	if !validDataTag(tag, TagCHUID) {
		return newErr(InvalidDataTag, "tag 0x%X is not a valid CHUID data tag", tag)
	}
	c.dataTag = tag
	return nil
}

// SetGuid copies an exact 16-byte GUID into the object.
func (c *CHUID) SetGuid(guid [16]byte) {
	c.guid = guid
	c.set = true
}

// SetRandomGuid populates the GUID from rng.
func (c *CHUID) SetRandomGuid(rng RNG) error {
	guid, err := rng.GUID()
	if err != nil {
		return err
	}
	c.SetGuid(guid)
	return nil
}

// Guid returns the current 16-byte GUID.
func (c *CHUID) Guid() [16]byte { return c.guid }

// Encode serializes the CHUID. An empty object encodes to 0x53 0x00.
func (c *CHUID) Encode() ([]byte, error) {
	w := tlv.NewWriter()
	err := w.Nested(chuidContainerTag, func(inner *tlv.Writer) error {
		if !c.set {
			return nil
		}
		if err := inner.WriteValue(chuidFascNTag, fascN[:]); err != nil {
			return err
		}
		if err := inner.WriteValue(chuidGUIDTag, c.guid[:]); err != nil {
			return err
		}
		if err := inner.WriteString(chuidExpiryTag, expirationDate, tlv.ASCII); err != nil {
			return err
		}
		if err := inner.WriteValue(chuidSignatureTag, nil); err != nil {
			return err
		}
		return inner.WriteValue(chuidLRCTag, nil)
	})
	if err != nil {
		return nil, err
	}
	return w.Encode()
}

// TryDecode validates raw against the exact CHUID schema (spec.md
// §4.4) and, on success, adopts its GUID. On any deviation it returns
// false and leaves the object untouched.
func (c *CHUID) TryDecode(raw []byte) bool {
	r := tlv.NewReader(raw)
	inner, ok := r.TryReadNested(chuidContainerTag)
	if !ok || r.HasData() {
		return false
	}

	fascNBytes, ok := inner.TryReadValue(chuidFascNTag)
	if !ok || !bytes.Equal(fascNBytes, fascN[:]) {
		return false
	}

	guidBytes, ok := inner.TryReadValue(chuidGUIDTag)
	if !ok || len(guidBytes) != 16 {
		return false
	}

	expiry, ok := inner.TryReadString(chuidExpiryTag, tlv.ASCII)
	if !ok || expiry != expirationDate {
		return false
	}

	sig, ok := inner.TryReadValue(chuidSignatureTag)
	if !ok || len(sig) != 0 {
		return false
	}

	lrc, ok := inner.TryReadValue(chuidLRCTag)
	if !ok || len(lrc) != 0 {
		return false
	}

	if inner.HasData() {
		return false
	}

	var guid [16]byte
	copy(guid[:], guidBytes)
	c.SetGuid(guid)
	return true
}

// Clear zeroes the GUID, the only cryptographic-adjacent mutable
// field, per spec.md §5's sensitive-data lifetime requirement.
func (c *CHUID) Clear() {
	for i := range c.guid {
		c.guid[i] = 0
	}
	c.set = false
}
