package piv

import (
	"bytes"

	"github.com/pivert/pivert/pkg/tlv"
)

// cccAID is the fixed 7-byte AID prefix of the CCC's unique card
// identifier (spec.md §3).
var cccAID = [7]byte{0xA0, 0x00, 0x00, 0x01, 0x16, 0xFF, 0x02}

const (
	cccContainerTag  = 0x53
	cccCardIDTag     = 0xF0
	cccVersionTag    = 0xF1
	cccGrammarTag    = 0xF2
	cccEmpty1Tag     = 0xF3
	cccPKCS15Tag     = 0xF4
	cccDataModelTag  = 0xF5
	cccEmpty2Tag     = 0xF6
	cccEmpty3Tag     = 0xF7
	cccEmpty4Tag     = 0xFA
	cccEmpty5Tag     = 0xFB
	cccEmpty6Tag     = 0xFC
	cccEmpty7Tag     = 0xFD
	cccEmpty8Tag     = 0xFE

	cccVersionValue   = 0x21
	cccGrammarValue   = 0x21
	cccPKCS15Value    = 0x00
	cccDataModelValue = 0x10
)

// CCC is the Card Capability Container data object (spec.md §3, §4.4).
// The only mutable field is the 14-byte CardID half of the unique card
// identifier.
type CCC struct {
	dataTag uint32
	cardID  [14]byte
	set     bool
}

// NewCCC constructs an empty CCC stored at the PIV-defined tag.
func NewCCC() *CCC {
	return &CCC{dataTag: TagCCC}
}

// IsEmpty reports whether the object has not yet had its CardID set.
func (c *CCC) IsEmpty() bool { return !c.set }

// DataTag returns the storage locator this instance answers GET DATA
// requests under.
func (c *CCC) DataTag() uint32 { return c.dataTag }

// DefinedDataTag is the immutable PIV-defined tag for CCC.
func (c *CCC) DefinedDataTag() uint32 { return TagCCC }

// SetDataTag relocates the object to an alternate valid tag.
func (c *CCC) SetDataTag(tag uint32) error {
	if !validDataTag(tag, TagCCC) {
		return newErr(InvalidDataTag, "tag 0x%X is not a valid CCC data tag", tag)
	}
	c.dataTag = tag
	return nil
}

// SetCardID copies an exact 14-byte CardID into the object.
func (c *CCC) SetCardID(cardID [14]byte) {
	c.cardID = cardID
	c.set = true
}

// SetRandomCardID populates the CardID from rng.
func (c *CCC) SetRandomCardID(rng RNG) error {
	cardID, err := rng.CardID()
	if err != nil {
		return err
	}
	c.SetCardID(cardID)
	return nil
}

// Encode serializes the CCC. An empty object encodes to 0x53 0x00.
func (c *CCC) Encode() ([]byte, error) {
	w := tlv.NewWriter()
	err := w.Nested(cccContainerTag, func(inner *tlv.Writer) error {
		if !c.set {
			return nil
		}
		uci := make([]byte, 0, 21)
		uci = append(uci, cccAID[:]...)
		uci = append(uci, c.cardID[:]...)
		if err := inner.WriteValue(cccCardIDTag, uci); err != nil {
			return err
		}
		if err := inner.WriteByte(cccVersionTag, cccVersionValue); err != nil {
			return err
		}
		if err := inner.WriteByte(cccGrammarTag, cccGrammarValue); err != nil {
			return err
		}
		if err := inner.WriteValue(cccEmpty1Tag, nil); err != nil {
			return err
		}
		if err := inner.WriteByte(cccPKCS15Tag, cccPKCS15Value); err != nil {
			return err
		}
		if err := inner.WriteByte(cccDataModelTag, cccDataModelValue); err != nil {
			return err
		}
		for _, tag := range []uint32{cccEmpty2Tag, cccEmpty3Tag, cccEmpty4Tag, cccEmpty5Tag, cccEmpty6Tag, cccEmpty7Tag, cccEmpty8Tag} {
			if err := inner.WriteValue(tag, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w.Encode()
}

// TryDecode validates raw against the exact CCC schema (spec.md §4.4)
// and, on success, adopts its CardID. On any deviation it returns
// false and leaves the object untouched.
func (c *CCC) TryDecode(raw []byte) bool {
	r := tlv.NewReader(raw)
	inner, ok := r.TryReadNested(cccContainerTag)
	if !ok || r.HasData() {
		return false
	}

	uci, ok := inner.TryReadValue(cccCardIDTag)
	if !ok || len(uci) != 0x15 || !bytes.Equal(uci[:7], cccAID[:]) {
		return false
	}

	version, ok := inner.TryReadByte(cccVersionTag)
	if !ok || version != cccVersionValue {
		return false
	}
	grammar, ok := inner.TryReadByte(cccGrammarTag)
	if !ok || grammar != cccGrammarValue {
		return false
	}
	if e, ok := inner.TryReadValue(cccEmpty1Tag); !ok || len(e) != 0 {
		return false
	}
	pkcs15, ok := inner.TryReadByte(cccPKCS15Tag)
	if !ok || pkcs15 != cccPKCS15Value {
		return false
	}
	model, ok := inner.TryReadByte(cccDataModelTag)
	if !ok || model != cccDataModelValue {
		return false
	}
	for _, tag := range []uint32{cccEmpty2Tag, cccEmpty3Tag, cccEmpty4Tag, cccEmpty5Tag, cccEmpty6Tag, cccEmpty7Tag, cccEmpty8Tag} {
		if e, ok := inner.TryReadValue(tag); !ok || len(e) != 0 {
			return false
		}
	}
	if inner.HasData() {
		return false
	}

	var cardID [14]byte
	copy(cardID[:], uci[7:])
	c.SetCardID(cardID)
	return true
}

// Clear zeroes the CardID, the only cryptographic-adjacent mutable
// field, per spec.md §5's sensitive-data lifetime requirement.
func (c *CCC) Clear() {
	for i := range c.cardID {
		c.cardID[i] = 0
	}
	c.set = false
}
