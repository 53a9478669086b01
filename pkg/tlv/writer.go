// Package tlv implements the Tag-Length-Value codec the PIV application
// core is built on: a scoped, depth-first Writer and a zero-copy,
// cursor-based Reader, both following the BER/DER length rules used by
// ISO 7816.
package tlv

// Writer assembles a nested TLV tree and serializes it to bytes. Child
// TLVs accumulate under whichever scope is currently open; OpenNested
// pushes a new scope, Close pops it and attaches its encoded form to
// the parent.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	stack []*scope
}

type scope struct {
	tag    uint32
	hasTag bool // false only for the implicit root scope
	buf    []byte
}

// NewWriter returns an empty Writer with its root scope open.
func NewWriter() *Writer {
	return &Writer{stack: []*scope{{}}}
}

func (w *Writer) top() *scope {
	return w.stack[len(w.stack)-1]
}

// NestedScope is the handle returned by OpenNested. Closing it (exactly
// once) attaches the accumulated children to the enclosing scope.
type NestedScope struct {
	w      *Writer
	depth  int
	closed bool
}

// OpenNested begins a new scope under tag. Every write to the Writer
// after this call and before the matching Close targets the new scope.
func (w *Writer) OpenNested(tag uint32) (*NestedScope, error) {
	if _, err := tagWidth(tag); err != nil {
		return nil, err
	}
	w.stack = append(w.stack, &scope{tag: tag, hasTag: true})
	return &NestedScope{w: w, depth: len(w.stack)}, nil
}

// Close attaches the scope's accumulated children to its parent as one
// nested TLV. Safe to call more than once; only the first call acts.
func (n *NestedScope) Close() error {
	if n.closed {
		return nil
	}
	n.closed = true
	w := n.w
	if len(w.stack) != n.depth {
		// The caller closed scopes out of order or never opened one
		// matching this depth; nothing sane to attach.
		return newErr(InvalidSchema, "nested scope closed out of order")
	}
	closing := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	encoded, err := encodeTLV(closing.tag, closing.buf)
	if err != nil {
		return err
	}
	parent := w.top()
	parent.buf = append(parent.buf, encoded...)
	return nil
}

// Nested opens tag, runs fn against w, and guarantees Close runs on
// every exit path, including a panic or an error returned by fn.
func (w *Writer) Nested(tag uint32, fn func(*Writer) error) (err error) {
	scope, openErr := w.OpenNested(tag)
	if openErr != nil {
		return openErr
	}
	defer func() {
		if closeErr := scope.Close(); err == nil {
			err = closeErr
		}
	}()
	return fn(w)
}

// WriteValue appends a leaf TLV under the currently open scope.
func (w *Writer) WriteValue(tag uint32, value []byte) error {
	encoded, err := encodeTLV(tag, value)
	if err != nil {
		return err
	}
	top := w.top()
	top.buf = append(top.buf, encoded...)
	return nil
}

// WriteByte appends a single-byte leaf TLV.
func (w *Writer) WriteByte(tag uint32, b byte) error {
	return w.WriteValue(tag, []byte{b})
}

// WriteInt16 appends a two-byte leaf TLV. bigEndian defaults to true;
// pass false for little-endian.
func (w *Writer) WriteInt16(tag uint32, n uint16, bigEndian ...bool) error {
	be := true
	if len(bigEndian) > 0 {
		be = bigEndian[0]
	}
	var b [2]byte
	if be {
		b[0], b[1] = byte(n>>8), byte(n)
	} else {
		b[0], b[1] = byte(n), byte(n>>8)
	}
	return w.WriteValue(tag, b[:])
}

// WriteInt32 appends a four-byte leaf TLV. bigEndian defaults to true.
func (w *Writer) WriteInt32(tag uint32, n uint32, bigEndian ...bool) error {
	be := true
	if len(bigEndian) > 0 {
		be = bigEndian[0]
	}
	var b [4]byte
	if be {
		b[0], b[1], b[2], b[3] = byte(n>>24), byte(n>>16), byte(n>>8), byte(n)
	} else {
		b[0], b[1], b[2], b[3] = byte(n), byte(n>>8), byte(n>>16), byte(n>>24)
	}
	return w.WriteValue(tag, b[:])
}

// StringEncoding selects how WriteString renders text into bytes.
type StringEncoding int

const (
	// ASCII writes the string's bytes as they are; runes outside 7-bit
	// ASCII are not converted and appear in their UTF-8 form.
	ASCII StringEncoding = iota
	// UTF8 encodes text as-is; Go strings are already UTF-8.
	UTF8
)

// WriteString appends text as a leaf TLV using the given encoding.
func (w *Writer) WriteString(tag uint32, text string, encoding StringEncoding) error {
	switch encoding {
	case ASCII:
		b := make([]byte, len(text))
		for i := 0; i < len(text); i++ {
			b[i] = text[i]
		}
		return w.WriteValue(tag, b)
	default:
		return w.WriteValue(tag, []byte(text))
	}
}

// WriteEncoded appends a pre-encoded TLV verbatim, bypassing tag/length
// re-encoding. The caller is responsible for raw being a well-formed
// tag+length+value sequence.
func (w *Writer) WriteEncoded(raw []byte) error {
	top := w.top()
	top.buf = append(top.buf, raw...)
	return nil
}

// EncodedLength returns the total serialized length of the tree built
// so far. Valid only once every opened scope has been closed.
func (w *Writer) EncodedLength() (int, error) {
	if len(w.stack) != 1 {
		return 0, newErr(InvalidSchema, "%d nested scope(s) still open", len(w.stack)-1)
	}
	return len(w.stack[0].buf), nil
}

// Encode returns a newly allocated buffer holding the whole tree.
// Valid only once every opened scope has been closed.
func (w *Writer) Encode() ([]byte, error) {
	if len(w.stack) != 1 {
		return nil, newErr(InvalidSchema, "%d nested scope(s) still open", len(w.stack)-1)
	}
	out := make([]byte, len(w.stack[0].buf))
	copy(out, w.stack[0].buf)
	return out, nil
}

// TryEncode writes the tree into dest, reporting the number of bytes
// written via written. It returns false (written = 0) if dest is too
// small or a scope is still open.
func (w *Writer) TryEncode(dest []byte, written *int) bool {
	*written = 0
	if len(w.stack) != 1 {
		return false
	}
	root := w.stack[0].buf
	if len(dest) < len(root) {
		return false
	}
	copy(dest, root)
	*written = len(root)
	return true
}

// Clear zeroes every byte this Writer has copied into its internal
// buffers, for callers building sensitive TLVs (e.g. key material).
func (w *Writer) Clear() {
	for _, s := range w.stack {
		for i := range s.buf {
			s.buf[i] = 0
		}
	}
}
