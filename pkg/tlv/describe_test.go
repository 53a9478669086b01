package tlv

import (
	"strings"
	"testing"
)

func TestDumpFlat(t *testing.T) {
	w := NewWriter()
	_ = w.WriteValue(0x50, []byte("VISA"))
	encoded, _ := w.Encode()

	out := Dump(encoded)
	if !strings.Contains(out, "50:") {
		t.Errorf("Dump() = %q, want a line for tag 50", out)
	}
	if !strings.Contains(out, "VISA") {
		t.Errorf("Dump() = %q, want the ASCII rendering of the value", out)
	}
}

func TestDumpNested(t *testing.T) {
	w := NewWriter()
	_ = w.Nested(0x7E, func(inner *Writer) error {
		return inner.WriteValue(0x4F, []byte{0xCA, 0xFE})
	})
	encoded, _ := w.Encode()

	out := Dump(encoded)
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("Dump() = %q, want 2 lines", out)
	}
	if !strings.HasPrefix(lines[0], "7E:") {
		t.Errorf("first line = %q, want the outer tag", lines[0])
	}
	if !strings.Contains(lines[1], "CAFE") {
		t.Errorf("second line = %q, want the inner value", lines[1])
	}
}

func TestDumpUndecodable(t *testing.T) {
	// Length byte claims 5 value bytes but only 1 is present.
	out := Dump([]byte{0x30, 0x05, 0x01})
	if !strings.Contains(out, "undecodable") {
		t.Errorf("Dump() = %q, want an undecodable marker", out)
	}
}

func TestMakeSafeASCII(t *testing.T) {
	input := []byte{0x41, 0x42, 0x00, 0x1F, 0x7F, 0x43} // AB, null, US, DEL, C
	want := "AB...C"                                    // 0x7F (127) is > 126, so it becomes dot

	got := MakeSafeASCII(input)
	if got != want {
		t.Errorf("MakeSafeASCII() = %q, want %q", got, want)
	}
}
