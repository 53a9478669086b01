package tlv

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriterFlatLeaves(t *testing.T) {
	w := NewWriter()
	if err := w.WriteByte(0x01, 0x7F); err != nil {
		t.Fatalf("WriteByte: %v", err)
	}
	if err := w.WriteValue(0x02, []byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("WriteValue: %v", err)
	}

	got, err := w.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x01, 0x01, 0x7F, 0x02, 0x02, 0xAA, 0xBB}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = % X, want % X", got, want)
	}
}

func TestWriterNested(t *testing.T) {
	w := NewWriter()
	err := w.Nested(0x53, func(inner *Writer) error {
		if err := inner.WriteValue(0x30, []byte{0x01, 0x02}); err != nil {
			return err
		}
		return inner.WriteValue(0x34, []byte{0x03})
	})
	if err != nil {
		t.Fatalf("Nested: %v", err)
	}

	got, err := w.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x53, 0x07, 0x30, 0x02, 0x01, 0x02, 0x34, 0x01, 0x03}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = % X, want % X", got, want)
	}
}

func TestWriterNestedCloseOnError(t *testing.T) {
	w := NewWriter()
	sentinel := &Error{Kind: UnexpectedEncoding, Msg: "boom"}
	err := w.Nested(0x7C, func(inner *Writer) error {
		_ = inner.WriteByte(0x82, 0x00)
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("Nested error = %v, want sentinel", err)
	}
	// The scope must have been closed despite the error, so the
	// writer is left in a consistent, fully-closed state.
	if _, encErr := w.Encode(); encErr != nil {
		t.Fatalf("Encode after errored Nested: %v", encErr)
	}
}

func TestWriterEncodedLengthRequiresClosedScopes(t *testing.T) {
	w := NewWriter()
	scope, err := w.OpenNested(0x53)
	if err != nil {
		t.Fatalf("OpenNested: %v", err)
	}
	if _, err := w.EncodedLength(); err == nil {
		t.Fatalf("EncodedLength should fail with an open scope")
	}
	if err := scope.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := w.EncodedLength(); err != nil {
		t.Fatalf("EncodedLength after close: %v", err)
	}
}

func TestWriterDERLengthForms(t *testing.T) {
	cases := []struct {
		name   string
		length int
		prefix []byte
	}{
		{"one byte", 0x10, []byte{0x10}},
		{"0x81 form", 200, []byte{0x81, 200}},
		{"0x82 form", 300, []byte{0x82, 0x01, 0x2C}},
		{"0x83 form", 70000, []byte{0x83, 0x01, 0x11, 0x70}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := NewWriter()
			if err := w.WriteValue(0x01, make([]byte, tc.length)); err != nil {
				t.Fatalf("WriteValue: %v", err)
			}
			got, err := w.Encode()
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			want := append([]byte{0x01}, tc.prefix...)
			want = append(want, make([]byte, tc.length)...)
			if !bytes.Equal(got, want) {
				t.Errorf("len(got)=%d len(want)=%d, prefix mismatch", len(got), len(want))
			}
		})
	}
}

func TestWriterTagLimits(t *testing.T) {
	w := NewWriter()
	if err := w.WriteValue(0x10000, []byte{0x01}); err == nil {
		t.Fatalf("expected UnsupportedTag for tag > 0xFFFF")
	} else if terr, ok := err.(*Error); !ok || terr.Kind != UnsupportedTag {
		t.Fatalf("expected UnsupportedTag, got %v", err)
	}
}

func TestWriterTryEncode(t *testing.T) {
	w := NewWriter()
	_ = w.WriteValue(0x5C, []byte{0x7E})

	small := make([]byte, 1)
	var n int
	if w.TryEncode(small, &n) {
		t.Fatalf("TryEncode should fail for undersized buffer")
	}
	if n != 0 {
		t.Fatalf("written = %d, want 0 on failure", n)
	}

	big := make([]byte, 16)
	if !w.TryEncode(big, &n) {
		t.Fatalf("TryEncode should succeed")
	}
	want, _ := w.Encode()
	if !bytes.Equal(big[:n], want) {
		t.Errorf("TryEncode wrote %X, want %X", big[:n], want)
	}
}

func TestWriterClearZeroesBuffers(t *testing.T) {
	w := NewWriter()
	_ = w.WriteValue(0x01, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	w.Clear()
	got, err := w.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if cmp.Equal(got, []byte{0x01, 0x04, 0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Errorf("Clear() did not zero the stored value bytes")
	}
}
