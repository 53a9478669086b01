package tlv

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestReaderReadValue(t *testing.T) {
	buf := []byte{0x5C, 0x01, 0x7E}
	r := NewReader(buf)
	v, err := r.ReadValue(0x5C)
	if err != nil {
		t.Fatalf("ReadValue: %v", err)
	}
	if !bytes.Equal(v, []byte{0x7E}) {
		t.Errorf("value = % X, want 7E", v)
	}
	if r.HasData() {
		t.Errorf("HasData should be false after consuming the whole buffer")
	}
}

func TestReaderReadValueEmptyLength(t *testing.T) {
	buf := []byte{0x53, 0x00}
	r := NewReader(buf)
	v, err := r.ReadValue(0x53)
	if err != nil {
		t.Fatalf("ReadValue: %v", err)
	}
	if len(v) != 0 {
		t.Errorf("value length = %d, want 0", len(v))
	}
}

func TestReaderTwoByteTag(t *testing.T) {
	buf := []byte{0x5F, 0x2F, 0x02, 0x4F, 0x09}
	r := NewReader(buf)
	v, err := r.ReadValue(0x5F2F)
	if err != nil {
		t.Fatalf("ReadValue: %v", err)
	}
	if !bytes.Equal(v, []byte{0x4F, 0x09}) {
		t.Errorf("value = % X", v)
	}
}

func TestReaderTagMismatch(t *testing.T) {
	buf := []byte{0x01, 0x01, 0xFF}
	r := NewReader(buf)
	if _, err := r.ReadValue(0x02); err == nil {
		t.Fatalf("expected UnexpectedEncoding error")
	} else if terr := err.(*Error); terr.Kind != UnexpectedEncoding {
		t.Fatalf("got %v, want UnexpectedEncoding", terr.Kind)
	}
	// Position must be unchanged after a failed read.
	if v, ok := r.TryReadValue(0x01); !ok || !bytes.Equal(v, []byte{0xFF}) {
		t.Fatalf("reader position moved after failed read: got %v ok=%v", v, ok)
	}
}

func TestReaderRejectsUnsupportedLength(t *testing.T) {
	cases := []byte{0x80, 0x84, 0xFF}
	for _, lenByte := range cases {
		buf := []byte{0x01, lenByte, 0x00, 0x00, 0x00, 0x00}
		r := NewReader(buf)
		_, err := r.ReadValue(0x01)
		if err == nil {
			t.Fatalf("length byte 0x%02X: expected failure", lenByte)
		}
		terr := err.(*Error)
		if terr.Kind != UnsupportedLength {
			t.Fatalf("length byte 0x%02X: got %v, want UnsupportedLength", lenByte, terr.Kind)
		}
		if r.pos != 0 {
			t.Fatalf("length byte 0x%02X: cursor advanced on failure", lenByte)
		}
	}
}

func TestReaderFixedWidthMismatch(t *testing.T) {
	buf := []byte{0x80, 0x01, 0xFF}
	r := NewReader(buf)
	if _, err := r.ReadUint16(0x80); err == nil {
		t.Fatalf("expected UnexpectedEncoding for short fixed-width value")
	}
}

func TestReaderNested(t *testing.T) {
	buf := []byte{0x53, 0x04, 0x30, 0x02, 0xAA, 0xBB}
	r := NewReader(buf)
	inner, err := r.ReadNested(0x53)
	if err != nil {
		t.Fatalf("ReadNested: %v", err)
	}
	v, err := inner.ReadValue(0x30)
	if err != nil {
		t.Fatalf("inner ReadValue: %v", err)
	}
	if !bytes.Equal(v, []byte{0xAA, 0xBB}) {
		t.Errorf("value = % X", v)
	}
	if r.HasData() {
		t.Errorf("outer reader should be fully consumed")
	}
}

func TestReaderReadEncoded(t *testing.T) {
	buf := []byte{0x30, 0x02, 0xAA, 0xBB, 0x31, 0x00}
	r := NewReader(buf)
	v, err := r.ReadEncoded(0x30)
	if err != nil {
		t.Fatalf("ReadEncoded: %v", err)
	}
	if !bytes.Equal(v, []byte{0x30, 0x02, 0xAA, 0xBB}) {
		t.Errorf("encoded view = % X", v)
	}
}

// TestRoundTrip exercises the TLV round-trip on random single leaves
// (1-byte tags, values of 0-39 bytes): each survives Encode -> ReadValue
// unchanged. Nesting is covered by TestRoundTripNestedTree.
func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		tag := uint32(1 + rng.Intn(0xFF))
		value := make([]byte, rng.Intn(40))
		rng.Read(value)

		w := NewWriter()
		if err := w.WriteValue(tag, value); err != nil {
			t.Fatalf("WriteValue: %v", err)
		}
		encoded, err := w.Encode()
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}

		r := NewReader(encoded)
		got, err := r.ReadValue(tag)
		if err != nil {
			t.Fatalf("ReadValue: %v", err)
		}
		if !bytes.Equal(got, value) {
			t.Errorf("round trip mismatch: got % X, want % X", got, value)
		}
	}
}

func TestRoundTripNestedTree(t *testing.T) {
	w := NewWriter()
	err := w.Nested(0x7C, func(inner *Writer) error {
		if err := inner.WriteByte(0x82, 0x00); err != nil {
			return err
		}
		return inner.Nested(0x81, func(deepest *Writer) error {
			return deepest.WriteValue(0x01, []byte{1, 2, 3})
		})
	})
	if err != nil {
		t.Fatalf("Nested: %v", err)
	}
	encoded, err := w.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	r := NewReader(encoded)
	outer, err := r.ReadNested(0x7C)
	if err != nil {
		t.Fatalf("ReadNested(0x7C): %v", err)
	}
	if _, err := outer.ReadByte(0x82); err != nil {
		t.Fatalf("ReadByte(0x82): %v", err)
	}
	mid, err := outer.ReadNested(0x81)
	if err != nil {
		t.Fatalf("ReadNested(0x81): %v", err)
	}
	v, err := mid.ReadValue(0x01)
	if err != nil {
		t.Fatalf("ReadValue(0x01): %v", err)
	}
	if !bytes.Equal(v, []byte{1, 2, 3}) {
		t.Errorf("value = % X", v)
	}
}
