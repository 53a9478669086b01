package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// Dump renders a raw TLV blob as an indented, human-readable tree for
// session traces and the pivcheck report. It is strictly a diagnostic
// aid: unlike Writer/Reader it decodes via bertlv's reflection-free
// decoder rather than tracking a cursor, and it never participates in
// the protocol core's encode/decode path. Children are expanded only
// for tags bertlv treats as constructed (bit 0x20 of the first tag
// byte set, e.g. 0x7E or 0x7C); a tag such as the PIV 0x53 container
// is shown as a single hex value.
func Dump(data []byte) string {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Sprintf("<undecodable: %v> %s", err, strings.ToUpper(hex.EncodeToString(data)))
	}
	var sb strings.Builder
	dumpPackets(&sb, packets, 0)
	return strings.TrimRight(sb.String(), "\n")
}

func dumpPackets(sb *strings.Builder, packets []bertlv.TLV, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, p := range packets {
		if len(p.TLVs) > 0 {
			fmt.Fprintf(sb, "%s%s:\n", indent, strings.ToUpper(p.Tag))
			dumpPackets(sb, p.TLVs, depth+1)
			continue
		}
		fmt.Fprintf(sb, "%s%s: %s\n", indent, strings.ToUpper(p.Tag), describeValue(p.Value))
	}
}

func describeValue(v []byte) string {
	if len(v) == 0 {
		return "(empty)"
	}
	ascii := MakeSafeASCII(v)
	if strings.Count(ascii, ".") < len(ascii)/2 {
		return fmt.Sprintf("%s (%q)", strings.ToUpper(hex.EncodeToString(v)), ascii)
	}
	return strings.ToUpper(hex.EncodeToString(v))
}

// MakeSafeASCII replaces every byte outside the printable ASCII range
// with '.', for safe inclusion in log lines and reports.
func MakeSafeASCII(data []byte) string {
	out := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			out[i] = b
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}
