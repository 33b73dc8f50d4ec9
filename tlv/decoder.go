package tlv

import (
	"bufio"
	"errors"
	"io"
	"math"

	"github.com/ansel1/merry"
)

// Decode decodes the first ASN.1 object in b into a tree.  Bytes following
// the object are ignored.  The returned tree does not alias b.
func Decode(b []byte) (Node, error) {
	n, _, err := decode(b, 0)
	return n, err
}

// DecodeNext decodes the first ASN.1 object in b, and returns the number
// of bytes it occupied (tag, length field, and content), so the caller can
// advance to the next object.
func DecodeNext(b []byte) (Node, int, error) {
	return decode(b, 0)
}

// DecodeAll decodes a concatenation of ASN.1 objects.  Every byte of b
// must belong to an object.
func DecodeAll(b []byte) (Nodes, error) {
	nodes := Nodes{}
	for off := 0; off < len(b); {
		n, l, err := decode(b[off:], off)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
		off += l
	}
	return nodes, nil
}

// decode decodes one object from the start of b.  base is the position of
// b in the original input, used to annotate errors.
func decode(b []byte, base int) (Node, int, error) {
	tag, hl, l, err := parseHeader(b)
	if err != nil {
		return Node{}, 0, withOffset(err, base)
	}

	if len(b)-hl < l {
		err := merry.Here(ErrTruncated).Appendf("%v declares %d content bytes, only %d remain", tag, l, len(b)-hl)
		return Node{}, 0, withOffset(err, base)
	}
	content := b[hl : hl+l]

	switch tag {
	case TagSequence:
		// children are bounded by the sequence's declared length, not by
		// the end of the buffer
		children := Nodes{}
		for off := 0; off < l; {
			c, cl, err := decode(content[off:], base+hl+off)
			if err != nil {
				return Node{}, 0, merry.Prepend(err, tag.String())
			}
			children = append(children, c)
			off += cl
		}
		return Node{Tag: tag, Value: children}, hl + l, nil
	case TagBitString:
		if l < 1 {
			err := merry.Here(ErrTruncated).Append("BIT STRING is missing its unused bits octet")
			return Node{}, 0, withOffset(err, base)
		}
		return Node{Tag: tag, Value: BitString{
			UnusedBits: content[0],
			Bytes:      append([]byte{}, content[1:]...),
		}}, hl + l, nil
	default:
		return Node{Tag: tag, Value: append([]byte{}, content...)}, hl + l, nil
	}
}

// parseHeader reads the tag and length octets from the start of b.  It returns
// the tag, the size of the header, and the declared content length.  Only the
// definite forms with at most 4 explicit length octets are accepted.
func parseHeader(b []byte) (tag Tag, hl int, l int, err error) {
	if len(b) < 1 {
		return 0, 0, 0, merry.Here(ErrTruncated).Append("missing tag")
	}
	tag = Tag(b[0])
	if len(b) < 2 {
		return tag, 0, 0, merry.Here(ErrTruncated).Appendf("%v is missing its length", tag)
	}

	lb := b[1]
	if lb < 0x80 {
		return tag, 2, int(lb), nil
	}

	n := int(lb &^ 0x80)
	switch {
	case n == 0:
		return tag, 0, 0, merry.Here(ErrUnsupportedInput).Appendf("%v uses the indefinite length form", tag)
	case n > maxLenBytes:
		return tag, 0, 0, merry.Here(ErrObjectTooLarge).Appendf("%v length needs %d octets, max is %d", tag, n, maxLenBytes)
	case len(b)-2 < n:
		return tag, 0, 0, merry.Here(ErrTruncated).Appendf("%v length needs %d octets, only %d remain", tag, n, len(b)-2)
	}

	var u uint64
	for _, c := range b[2 : 2+n] {
		u = u<<8 | uint64(c)
	}
	if u > math.MaxInt {
		return tag, 0, 0, merry.Here(ErrObjectTooLarge).Appendf("%v length %d overflows int", tag, u)
	}
	return tag, 2 + n, int(u), nil
}

// Decoder reads a stream of concatenated ASN.1 objects, such as a network
// connection carrying one DER message after another.
type Decoder struct {
	bufr *bufio.Reader

	// MaxSize limits the full encoded size of a single object.  Larger objects
	// fail with ErrObjectTooLarge before their content is read.  Zero means
	// DefaultMaxSize.
	MaxSize int
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		bufr: bufio.NewReader(r),
	}
}

func (dec *Decoder) Reset(r io.Reader) {
	dec.bufr.Reset(r)
}

// Buffered returns the number of bytes already read off the stream but not
// yet returned, e.g. the start of a pipelined object.
func (dec *Decoder) Buffered() int {
	return dec.bufr.Buffered()
}

// Decode reads the next object from the stream and decodes it.  It returns
// io.EOF if the stream ends cleanly between objects.
func (dec *Decoder) Decode() (Node, error) {
	raw, err := dec.NextTLV()
	if err != nil {
		return Node{}, err
	}
	return Decode(raw)
}

// NextTLV reads the raw bytes of the next complete object off the stream, by
// peeking at the header to learn the object's size.  It returns io.EOF if the
// stream ends cleanly between objects.
func (dec *Decoder) NextTLV() ([]byte, error) {
	header, err := dec.bufr.Peek(2)
	switch {
	case len(header) == 0 && errors.Is(err, io.EOF):
		return nil, io.EOF
	case len(header) < 2:
		return nil, dec.readErr(err)
	}

	hl := 2
	if header[1] > 0x80 && header[1]&^0x80 <= maxLenBytes {
		hl += int(header[1] &^ 0x80)
		header, err = dec.bufr.Peek(hl)
		if len(header) < hl {
			return nil, dec.readErr(err)
		}
	}

	_, hl, l, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	max := dec.MaxSize
	if max <= 0 {
		max = DefaultMaxSize
	}
	fullLen := hl + l
	if fullLen > max {
		return nil, merry.Here(ErrObjectTooLarge).Appendf("object size %d exceeds max size %d", fullLen, max)
	}

	// allocate a buffer large enough for the entire object
	buf := make([]byte, fullLen)
	if _, err := io.ReadFull(dec.bufr, buf); err != nil {
		return nil, dec.readErr(err)
	}
	return buf, nil
}

func (dec *Decoder) readErr(err error) error {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return merry.Here(ErrTruncated).WithCause(io.ErrUnexpectedEOF)
	}
	return merry.Wrap(err)
}
