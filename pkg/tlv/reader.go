package tlv

import "unicode/utf8"

// Reader streams TLV elements from a referenced buffer without copying
// values out of it. A Reader holds a non-owning view: the caller must
// not mutate or free buf while any value returned by this Reader (or a
// nested Reader derived from it) is still live.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential TLV reads starting at offset 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// HasData reports whether the cursor has not yet reached the end of
// the buffer.
func (r *Reader) HasData() bool {
	return r.pos < len(r.buf)
}

// PeekTag returns the next tag (tagLen ∈ {1, 2} bytes) without
// advancing the cursor.
func (r *Reader) PeekTag(tagLen int) (uint32, error) {
	if tagLen != 1 && tagLen != 2 {
		return 0, newErr(UnsupportedTag, "tag length argument must be 1 or 2, got %d", tagLen)
	}
	tag, err := decodeTagAt(r.buf, r.pos, tagLen)
	if err != nil {
		return 0, err
	}
	return tag, nil
}

// TryPeekTag is the non-throwing form of PeekTag.
func (r *Reader) TryPeekTag(tagLen int) (uint32, bool) {
	tag, err := r.PeekTag(tagLen)
	if err != nil {
		return 0, false
	}
	return tag, true
}

// PeekLength skips the tag and decodes the DER length that follows,
// without advancing the cursor.
func (r *Reader) PeekLength(tagLen int) (int, error) {
	if tagLen != 1 && tagLen != 2 {
		return 0, newErr(UnsupportedTag, "tag length argument must be 1 or 2, got %d", tagLen)
	}
	length, _, err := decodeLengthAt(r.buf, r.pos+tagLen)
	if err != nil {
		return 0, err
	}
	return length, nil
}

// TryPeekLength is the non-throwing form of PeekLength.
func (r *Reader) TryPeekLength(tagLen int) (int, bool) {
	length, err := r.PeekLength(tagLen)
	if err != nil {
		return 0, false
	}
	return length, true
}

// widthOf returns the tag encoding width implied by expectedTag's
// magnitude, matching the convention used throughout the PIV object
// tables: tags ≤ 0xFF read as one byte, 0x100-0xFFFF as two.
func widthOf(expectedTag uint32) (int, *Error) {
	switch {
	case expectedTag == 0 || expectedTag > MaxTag:
		return 0, newErr(UnsupportedTag, "expected tag 0x%X out of range", expectedTag)
	case expectedTag <= 0xFF:
		return 1, nil
	default:
		return 2, nil
	}
}

// readHeader decodes the tag and length at the cursor, verifies the
// tag equals expectedTag, and returns the value's start offset and
// length, without advancing the cursor.
func (r *Reader) readHeader(expectedTag uint32) (valueStart, length, totalLen int, err *Error) {
	width, werr := widthOf(expectedTag)
	if werr != nil {
		return 0, 0, 0, werr
	}
	tag, terr := decodeTagAt(r.buf, r.pos, width)
	if terr != nil {
		return 0, 0, 0, terr
	}
	if tag != expectedTag {
		return 0, 0, 0, newErr(UnexpectedEncoding, "expected tag 0x%X, found 0x%X", expectedTag, tag)
	}
	length, lenWidth, lerr := decodeLengthAt(r.buf, r.pos+width)
	if lerr != nil {
		return 0, 0, 0, lerr
	}
	valueStart = r.pos + width + lenWidth
	if valueStart+length > len(r.buf) {
		return 0, 0, 0, newErr(UnexpectedEnd, "value of length %d exceeds remaining buffer", length)
	}
	return valueStart, length, (valueStart + length) - r.pos, nil
}

// ReadValue verifies the next tag equals expectedTag, reads its DER
// length, and returns a non-owning view of the value, advancing past
// the whole TLV.
func (r *Reader) ReadValue(expectedTag uint32) ([]byte, error) {
	valueStart, length, total, err := r.readHeader(expectedTag)
	if err != nil {
		return nil, err
	}
	view := r.buf[valueStart : valueStart+length]
	r.pos += total
	return view, nil
}

// TryReadValue is the non-throwing form of ReadValue.
func (r *Reader) TryReadValue(expectedTag uint32) ([]byte, bool) {
	v, err := r.ReadValue(expectedTag)
	if err != nil {
		return nil, false
	}
	return v, true
}

func (r *Reader) readFixed(expectedTag uint32, width int) ([]byte, error) {
	valueStart, length, total, err := r.readHeader(expectedTag)
	if err != nil {
		return nil, err
	}
	if length != width {
		return nil, newErr(UnexpectedEncoding, "expected %d-byte value for tag 0x%X, found %d", width, expectedTag, length)
	}
	view := r.buf[valueStart : valueStart+length]
	r.pos += total
	return view, nil
}

// ReadByte reads a fixed 1-byte value.
func (r *Reader) ReadByte(expectedTag uint32) (byte, error) {
	v, err := r.readFixed(expectedTag, 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// TryReadByte is the non-throwing form of ReadByte.
func (r *Reader) TryReadByte(expectedTag uint32) (byte, bool) {
	v, err := r.ReadByte(expectedTag)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ReadUint16 reads a fixed 2-byte value and decodes it as an unsigned
// integer. bigEndian defaults to true.
func (r *Reader) ReadUint16(expectedTag uint32, bigEndian ...bool) (uint16, error) {
	v, err := r.readFixed(expectedTag, 2)
	if err != nil {
		return 0, err
	}
	if len(bigEndian) > 0 && !bigEndian[0] {
		return uint16(v[0]) | uint16(v[1])<<8, nil
	}
	return uint16(v[0])<<8 | uint16(v[1]), nil
}

// TryReadUint16 is the non-throwing form of ReadUint16.
func (r *Reader) TryReadUint16(expectedTag uint32, bigEndian ...bool) (uint16, bool) {
	v, err := r.ReadUint16(expectedTag, bigEndian...)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ReadInt16 reads a fixed 2-byte value and decodes it as a signed
// integer of the same bit pattern.
func (r *Reader) ReadInt16(expectedTag uint32, bigEndian ...bool) (int16, error) {
	v, err := r.ReadUint16(expectedTag, bigEndian...)
	if err != nil {
		return 0, err
	}
	return int16(v), nil
}

// TryReadInt16 is the non-throwing form of ReadInt16.
func (r *Reader) TryReadInt16(expectedTag uint32, bigEndian ...bool) (int16, bool) {
	v, err := r.ReadInt16(expectedTag, bigEndian...)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ReadInt32 reads a fixed 4-byte value. bigEndian defaults to true.
func (r *Reader) ReadInt32(expectedTag uint32, bigEndian ...bool) (int32, error) {
	v, err := r.readFixed(expectedTag, 4)
	if err != nil {
		return 0, err
	}
	var n uint32
	if len(bigEndian) > 0 && !bigEndian[0] {
		n = uint32(v[0]) | uint32(v[1])<<8 | uint32(v[2])<<16 | uint32(v[3])<<24
	} else {
		n = uint32(v[0])<<24 | uint32(v[1])<<16 | uint32(v[2])<<8 | uint32(v[3])
	}
	return int32(n), nil
}

// TryReadInt32 is the non-throwing form of ReadInt32.
func (r *Reader) TryReadInt32(expectedTag uint32, bigEndian ...bool) (int32, bool) {
	v, err := r.ReadInt32(expectedTag, bigEndian...)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ReadString reads the value and decodes it as text. ASCII returns the
// value bytes as a string unchanged, without checking that they are
// 7-bit; UTF8 validates the bytes are well-formed UTF-8 and fails with
// UnexpectedEncoding if not.
func (r *Reader) ReadString(expectedTag uint32, encoding StringEncoding) (string, error) {
	v, err := r.ReadValue(expectedTag)
	if err != nil {
		return "", err
	}
	if encoding == UTF8 && !utf8.Valid(v) {
		return "", newErr(UnexpectedEncoding, "value for tag 0x%X is not valid UTF-8", expectedTag)
	}
	return string(v), nil
}

// TryReadString is the non-throwing form of ReadString.
func (r *Reader) TryReadString(expectedTag uint32, encoding StringEncoding) (string, bool) {
	v, err := r.ReadString(expectedTag, encoding)
	if err != nil {
		return "", false
	}
	return v, true
}

// ReadNested returns a new Reader over the current TLV's value,
// advancing the outer reader past the whole TLV.
func (r *Reader) ReadNested(expectedTag uint32) (*Reader, error) {
	v, err := r.ReadValue(expectedTag)
	if err != nil {
		return nil, err
	}
	return NewReader(v), nil
}

// TryReadNested is the non-throwing form of ReadNested.
func (r *Reader) TryReadNested(expectedTag uint32) (*Reader, bool) {
	n, err := r.ReadNested(expectedTag)
	if err != nil {
		return nil, false
	}
	return n, true
}

// ReadEncoded returns a view covering tag+length+value for the next
// TLV, advancing past it.
func (r *Reader) ReadEncoded(expectedTag uint32) ([]byte, error) {
	_, _, total, err := r.readHeader(expectedTag)
	if err != nil {
		return nil, err
	}
	view := r.buf[r.pos : r.pos+total]
	r.pos += total
	return view, nil
}

// TryReadEncoded is the non-throwing form of ReadEncoded.
func (r *Reader) TryReadEncoded(expectedTag uint32) ([]byte, bool) {
	v, err := r.ReadEncoded(expectedTag)
	if err != nil {
		return nil, false
	}
	return v, true
}
