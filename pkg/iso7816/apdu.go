package iso7816

import (
	"bytes"
	"fmt"
)

// APDU (Application Protocol Data Unit) structures and encodings according to ISO/IEC 7816-3 and 7816-4.
//
// COMMAND APDU (C-APDU):
// A command consists of a mandatory Header (4 bytes) and an optional Body.
//
// 1. Header:
//   - CLA (Class): Security, Chaining, Logical Channel.
//   - INS (Instruction): The specific command to execute.
//   - P1, P2 (Parameters): Command modifiers.
//
// 2. Body:
//   - Lc (Length Command): Number of bytes in the data field.
//   - Data: The command payload.
//   - Le (Length Expected): Maximum number of bytes expected in the response.
//
// ENCODING CASES (ISO 7816-3):
// - Case 1: No Data, No Response (Header only).
// - Case 2: No Data, Response Expected (Header + Le).
// - Case 3: Data Present, No Response (Header + Lc + Data).
// - Case 4: Data Present, Response Expected (Header + Lc + Data + Le).
//
// LENGTH MODES:
//   - Short Length: Lc/Le encoded on 1 byte (Max 255/256).
//   - Extended Length: Lc/Le encoded on multiple bytes (Max 65535/65536).
//     Extended mode is triggered if Lc > 255 or Le > 256.
//
// RESPONSE APDU (R-APDU):
// A response sent by the card consists of an optional Body and a mandatory Trailer.
//
// 1. Body (Data Field):
//   - Variable length sequence of bytes containing the response data.
//
// 2. Trailer (Status Word):
//   - SW1 (1 byte): Command processing status (High byte).
//   - SW2 (1 byte): Command processing qualification (Low byte).
//   - Example: 0x9000 indicates success.
//
// TRANSACTION:
// A logical exchange consisting of sending one Command APDU and receiving one Response APDU.

// APDU Limits and Constants according to ISO 7816-3.
const (
	// MaxShortLc is the maximum data length (Nc) encodable in Short Length mode (1 byte).
	MaxShortLc = 255

	// MaxShortLe is the maximum expected response length (Ne) encodable in Short Length mode.
	// In Short mode, 0x00 encodes 256.
	MaxShortLe = 256

	// MaxExtendedLc is the theoretical limit for Lc in Extended mode (16-bit unsigned).
	MaxExtendedLc = 65535

	// MaxExtendedLe is the maximum Ne encodable in Extended Length mode.
	// In Extended mode, 0x0000 encodes 65536.
	MaxExtendedLe = 65536

	// MaxAPDUBufferSize defines a safe buffer limit for Extended APDUs.
	// Calculation: Header(4) + ExtLc(3) + MaxData(65535) + ExtLe(2) + Safety Margin(1).
	MaxAPDUBufferSize = 4 + 3 + MaxExtendedLc + 2 + 1
)

// CommandAPDU represents a command sent to the card.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int // Expected response length (0 means none)
}

// NewCommandAPDU creates a basic command.
func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{
		Class:       cla,
		Instruction: ins,
		P1:          p1,
		P2:          p2,
		Data:        data,
		Ne:          ne,
	}
}

// Bytes encodes the CommandAPDU into its byte representation (C-APDU).
// It automatically handles the selection between Short and Extended encoding
// based on the length of Data (Nc) and the expected response length (Ne).
func (c *CommandAPDU) Bytes() ([]byte, error) {
	if len(c.Data) > MaxExtendedLc || c.Ne > MaxExtendedLe {
		return nil, fmt.Errorf("no valid encoding: Nc=%d Ne=%d exceed extended-length limits", len(c.Data), c.Ne)
	}

	buf := new(bytes.Buffer)

	// 1. Encode Header
	class, err := c.Class.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode Class: %w", err)
	}
	buf.WriteByte(class)
	buf.WriteByte(byte(c.Instruction.Raw))
	buf.WriteByte(c.P1)
	buf.WriteByte(c.P2)

	nc := len(c.Data)
	ne := c.Ne

	// Determine encoding mode
	isExtended := nc > MaxShortLc || ne > MaxShortLe

	// 2. Encode Lc Field & Data Field
	if nc > 0 {
		if !isExtended {
			// Case 3/4 Short: Lc (1 byte) + Data
			buf.WriteByte(byte(nc))
		} else {
			// Case 3/4 Extended: 00 + Lc (2 bytes) + Data
			buf.WriteByte(0x00)
			buf.WriteByte(byte(nc >> 8))
			buf.WriteByte(byte(nc))
		}
		buf.Write(c.Data)
	}

	// 3. Encode Le Field
	if ne > 0 {
		if !isExtended {
			// Case 2/4 Short: Le (1 byte)
			if ne == MaxShortLe {
				buf.WriteByte(0x00) // 0x00 represents 256
			} else {
				buf.WriteByte(byte(ne))
			}
		} else {
			// Case 2/4 Extended
			// If Lc was absent (Case 2 Extended), we need a leading 00 to distinguish Le from Lc.
			if nc == 0 {
				buf.WriteByte(0x00)
			}

			if ne == MaxExtendedLe {
				// 0x0000 represents 65536
				buf.WriteByte(0x00)
				buf.WriteByte(0x00)
			} else {
				// Le (2 bytes Big Endian)
				buf.WriteByte(byte(ne >> 8))
				buf.WriteByte(byte(ne))
			}
		}
	}

	return buf.Bytes(), nil
}

// String returns a readable representation of the command meta-data.
func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Ne)
}

// EncodingMode selects how CommandAPDU.BytesWithMode renders Lc/Le.
type EncodingMode int

const (
	// Automatic picks Short or Extended based on the size of Data/Ne,
	// matching the behavior of Bytes().
	Automatic EncodingMode = iota
	// Short forces the single-byte Lc/Le forms, failing if Data or Ne
	// do not fit.
	Short
	// Extended forces the 0x00-prefixed multi-byte Lc/Le forms, even
	// when the short form would fit.
	Extended
)

// BytesWithMode encodes the CommandAPDU under an explicit encoding
// mode instead of letting the length of Data/Ne decide.
func (c *CommandAPDU) BytesWithMode(mode EncodingMode) ([]byte, error) {
	switch mode {
	case Automatic:
		return c.Bytes()
	case Short:
		if len(c.Data) > MaxShortLc {
			return nil, fmt.Errorf("data length %d exceeds short-form Lc limit %d", len(c.Data), MaxShortLc)
		}
		if c.Ne > MaxShortLe {
			return nil, fmt.Errorf("Ne %d exceeds short-form Le limit %d", c.Ne, MaxShortLe)
		}
		return c.Bytes()
	case Extended:
		return c.bytesExtended()
	default:
		return nil, fmt.Errorf("unknown encoding mode %d", mode)
	}
}

// bytesExtended forces the multi-byte Lc/Le forms regardless of Data/Ne
// size, per the extended-length rules of ISO 7816-3.
func (c *CommandAPDU) bytesExtended() ([]byte, error) {
	buf := new(bytes.Buffer)

	class, err := c.Class.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode Class: %w", err)
	}
	buf.WriteByte(class)
	buf.WriteByte(byte(c.Instruction.Raw))
	buf.WriteByte(c.P1)
	buf.WriteByte(c.P2)

	nc := len(c.Data)
	ne := c.Ne

	if nc > 0 {
		buf.WriteByte(0x00)
		buf.WriteByte(byte(nc >> 8))
		buf.WriteByte(byte(nc))
		buf.Write(c.Data)
	}

	if ne > 0 {
		if nc == 0 {
			buf.WriteByte(0x00)
		}
		if ne == MaxExtendedLe {
			buf.WriteByte(0x00)
			buf.WriteByte(0x00)
		} else {
			buf.WriteByte(byte(ne >> 8))
			buf.WriteByte(byte(ne))
		}
	}

	return buf.Bytes(), nil
}

// ParseCommandAPDU decodes a raw C-APDU received from the terminal into
// a CommandAPDU, following the short- and extended-length cases of
// ISO 7816-3/7816-4:
//
//   - len == 4:                    header only, no data, no Le.
//   - len == 5:                    header + 1-byte Le, no data.
//   - len == 5+Lc, raw[4] != 0x00: header + short Lc + data, no Le.
//   - len == 6+Lc, raw[4] != 0x00: header + short Lc + data + 1-byte Le.
//   - raw[4] == 0x00 and len > 7:  extended form, a 2-byte Lc follows;
//     the presence of a further 2-byte Le is inferred from the
//     remaining length.
//   - raw[4] == 0x00 and len == 7: extended form, no data, 2-byte Le.
func ParseCommandAPDU(raw []byte) (*CommandAPDU, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("command too short: length %d", len(raw))
	}

	class, err := NewClass(raw[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode CLA: %w", err)
	}
	ins, err := NewInstruction(InsCode(raw[1]))
	if err != nil {
		return nil, fmt.Errorf("failed to decode INS: %w", err)
	}
	p1, p2 := raw[2], raw[3]
	rest := raw[4:]

	cmd := &CommandAPDU{Class: class, Instruction: ins, P1: p1, P2: p2}

	switch {
	case len(rest) == 0:
		// Case 1: header only.
		return cmd, nil

	case len(rest) == 1:
		// Case 2 short: header + Le.
		cmd.Ne = shortLeValue(rest[0])
		return cmd, nil

	case rest[0] != 0x00:
		// Short-form Lc. Case 3 or 4.
		lc := int(rest[0])
		if len(rest) < 1+lc {
			return nil, fmt.Errorf("short Lc=%d exceeds remaining %d bytes", lc, len(rest)-1)
		}
		cmd.Data = rest[1 : 1+lc]
		tail := rest[1+lc:]
		switch len(tail) {
		case 0:
			// Case 3 short: no Le.
		case 1:
			cmd.Ne = shortLeValue(tail[0])
		default:
			return nil, fmt.Errorf("unexpected %d trailing bytes after short-form data", len(tail))
		}
		return cmd, nil

	case len(rest) == 3:
		// Case 2 extended: 00 + 2-byte Le, no data.
		cmd.Ne = extendedLeValue(rest[1], rest[2])
		return cmd, nil

	default:
		// Extended-form Lc: 00 LL LL [data] [00 00 | LL LL].
		if len(rest) < 3 {
			return nil, fmt.Errorf("extended header too short: %d bytes", len(rest))
		}
		lc := int(rest[1])<<8 | int(rest[2])
		if len(rest) < 3+lc {
			return nil, fmt.Errorf("extended Lc=%d exceeds remaining %d bytes", lc, len(rest)-3)
		}
		cmd.Data = rest[3 : 3+lc]
		tail := rest[3+lc:]
		switch len(tail) {
		case 0:
			// Case 3 extended: no Le.
		case 2:
			cmd.Ne = extendedLeValue(tail[0], tail[1])
		default:
			return nil, fmt.Errorf("unexpected %d trailing bytes after extended-form data", len(tail))
		}
		return cmd, nil
	}
}

// shortLeValue decodes a single short-form Le byte, where 0x00 means
// 256 rather than 0.
func shortLeValue(b byte) int {
	if b == 0x00 {
		return MaxShortLe
	}
	return int(b)
}

// extendedLeValue decodes a two-byte extended-form Le, where 0x0000
// means 65536 rather than 0.
func extendedLeValue(hi, lo byte) int {
	v := int(hi)<<8 | int(lo)
	if v == 0 {
		return MaxExtendedLe
	}
	return v
}

// ResponseAPDU represents the reply from the card (R-APDU).
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// NewResponseAPDU builds a response carrying data and a status word, for
// a card implementation that must emit R-APDUs rather than parse them.
func NewResponseAPDU(data []byte, status StatusWord) *ResponseAPDU {
	return &ResponseAPDU{Data: data, Status: status}
}

// Bytes serializes the ResponseAPDU into the wire form the terminal
// expects: the data field followed by SW1 SW2.
func (r *ResponseAPDU) Bytes() []byte {
	out := make([]byte, 0, len(r.Data)+2)
	out = append(out, r.Data...)
	out = append(out, r.Status.SW1(), r.Status.SW2())
	return out
}

// ParseResponseAPDU parses raw bytes received from the card into a ResponseAPDU.
// The input must contain at least 2 bytes (SW1, SW2).
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("response too short: length %d", len(raw))
	}

	indexSW1 := len(raw) - 2
	data := raw[:indexSW1]
	sw1 := raw[indexSW1]
	sw2 := raw[indexSW1+1]

	return &ResponseAPDU{
		Data:   data,
		Status: NewStatusWord(sw1, sw2),
	}, nil
}

// String returns a readable representation of the response.
func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
