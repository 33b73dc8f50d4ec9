package tlv

import (
	"io"
	"math"

	"github.com/ansel1/merry"
)

// DefaultMaxSize is the size of the encoder's scratch buffer, which bounds the
// size of a single encoded object.
const DefaultMaxSize = 1 << 20

// maxLenBytes is the max number of explicit length octets, so lengths
// must fit in 32 bits.
const maxLenBytes = 4

// lenReserve is the room reserved for a SEQUENCE length field before its
// children are encoded: the long form control octet, plus maxLenBytes.
const lenReserve = 1 + maxLenBytes

const maxLength = math.MaxUint32

// Encode encodes the tree rooted at n.  The length fields use the minimal
// (DER) form.  Returns ErrObjectTooLarge if the encoding exceeds
// DefaultMaxSize.
func Encode(n Node) ([]byte, error) {
	var h encBuf
	h.reset(DefaultMaxSize)
	if err := h.encode(n); err != nil {
		return nil, err
	}
	out := make([]byte, h.n)
	copy(out, h.Bytes())
	return out, nil
}

// Encoder writes encoded trees to a stream.  It reuses its scratch buffer
// between calls, so it is not safe for concurrent use.
type Encoder struct {
	w   io.Writer
	buf encBuf

	// MaxSize is the size of the scratch buffer, which limits the size of a
	// single encoded object.  Zero means DefaultMaxSize.
	MaxSize int
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode encodes n and writes it to the stream.  Nothing is written if
// encoding fails.
func (e *Encoder) Encode(n Node) error {
	max := e.MaxSize
	if max <= 0 {
		max = DefaultMaxSize
	}
	e.buf.reset(max)
	if err := e.buf.encode(n); err != nil {
		return err
	}
	_, err := e.w.Write(e.buf.Bytes())
	return merry.Wrap(err)
}

// encBuf is the encoder's scratch region.  len(b) is the hard capacity,
// n is the write cursor.
type encBuf struct {
	b []byte
	n int
}

func (h *encBuf) reset(size int) {
	if len(h.b) != size {
		h.b = make([]byte, size)
	}
	h.n = 0
}

func (h *encBuf) Bytes() []byte {
	return h.b[:h.n]
}

func (h *encBuf) remaining() int {
	return len(h.b) - h.n
}

func (h *encBuf) encode(v Node) error {
	switch t := v.Value.(type) {
	case Nodes:
		if v.Tag != TagSequence {
			return merry.Here(ErrUnsupportedInput).Appendf("%v can't have children, only %v can", v.Tag, TagSequence)
		}
		return h.encodeSequence(t)
	case BitString:
		if v.Tag != TagBitString {
			return merry.Here(ErrUnsupportedInput).Appendf("BitString value must have tag %v, got %v", TagBitString, v.Tag)
		}
		return h.encodePrimitive(v.Tag, t.Bytes, t.UnusedBits)
	case []byte:
		if v.Tag == TagSequence {
			return merry.Here(ErrUnsupportedInput).Appendf("%v value must be Nodes, got a byte payload", v.Tag)
		}
		// a BIT STRING given as plain bytes has no unused bits
		return h.encodePrimitive(v.Tag, t, 0)
	case nil:
		return merry.Here(ErrUnsupportedInput).Appendf("%v has no value", v.Tag)
	default:
		return merry.Here(ErrUnsupportedInput).Appendf("%v has value of unsupported type %T", v.Tag, v.Value)
	}
}

func (h *encBuf) encodePrimitive(tag Tag, payload []byte, unusedBits uint8) error {
	l := len(payload)
	if tag == TagBitString {
		l++
	}
	if uint64(l) > maxLength {
		return merry.Here(ErrObjectTooLarge).Appendf("%v length %d needs more than %d length octets", tag, l, maxLenBytes)
	}
	if need := 1 + lengthSize(l) + l; h.remaining() < need {
		return merry.Here(ErrObjectTooLarge).Appendf("%v needs %d bytes, only %d remain", tag, need, h.remaining())
	}

	h.b[h.n] = byte(tag)
	h.n++
	h.n += putLength(h.b[h.n:], l)
	if tag == TagBitString {
		h.b[h.n] = unusedBits
		h.n++
	}
	h.n += copy(h.b[h.n:], payload)
	return nil
}

// encodeSequence writes the tag, reserves the longest possible length field,
// writes the children directly after it, then backfills the real length and
// shifts the children left over the unused part of the reservation.
func (h *encBuf) encodeSequence(children Nodes) error {
	if h.remaining() < 1+lenReserve {
		return merry.Here(ErrObjectTooLarge).Appendf("%v needs %d bytes, only %d remain", TagSequence, 1+lenReserve, h.remaining())
	}

	start := h.n
	h.b[start] = byte(TagSequence)
	body := start + 1 + lenReserve
	h.n = body

	for i := range children {
		if err := h.encode(children[i]); err != nil {
			return err
		}
	}

	l := h.n - body
	if uint64(l) > maxLength {
		return merry.Here(ErrObjectTooLarge).Appendf("%v length %d needs more than %d length octets", TagSequence, l, maxLenBytes)
	}

	m := putLength(h.b[start+1:], l)
	if shift := lenReserve - m; shift > 0 {
		copy(h.b[start+1+m:], h.b[body:h.n])
		h.n -= shift
	}
	return nil
}

// lengthSize returns the size of the minimal length field for l.
func lengthSize(l int) int {
	if l < 0x80 {
		return 1
	}
	n := 1
	for ; l > 0; l >>= 8 {
		n++
	}
	return n
}

// putLength writes the minimal length field for l to the start of b,
// and returns the number of bytes written.
func putLength(b []byte, l int) int {
	if l < 0x80 {
		b[0] = byte(l)
		return 1
	}
	n := lengthSize(l) - 1
	b[0] = 0x80 | byte(n)
	for i := n; i > 0; i-- {
		b[i] = byte(l)
		l >>= 8
	}
	return n + 1
}
