package tlv

import (
	"bytes"
	"io"
	"testing"

	"github.com/ansel1/merry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		exp  Node
		n    int
	}{
		{
			name: "integer",
			in:   "02 | 01 | 05",
			exp:  Primitive(TagInteger, []byte{0x05}),
			n:    3,
		},
		{
			name: "empty payload",
			in:   "05 | 00",
			exp:  Primitive(TagNull, nil),
			n:    2,
		},
		{
			name: "unknown tag",
			in:   "a0 | 03 | 020101",
			exp:  Primitive(Tag(0xa0), []byte{0x02, 0x01, 0x01}),
			n:    5,
		},
		{
			name: "bit string",
			in:   "03 | 02 | 04 f0",
			exp:  NewBitString([]byte{0xf0}, 4),
			n:    4,
		},
		{
			name: "bit string without data",
			in:   "03 | 01 | 00",
			exp:  NewBitString(nil, 0),
			n:    3,
		},
		{
			name: "empty sequence",
			in:   "30 | 00",
			exp:  Sequence(),
			n:    2,
		},
		{
			name: "sequence",
			in: `30 | 07
				02 | 01 | 05
				03 | 02 | 04 f0`,
			exp: Sequence(
				Primitive(TagInteger, []byte{0x05}),
				NewBitString([]byte{0xf0}, 4),
			),
			n: 9,
		},
		{
			name: "nested sequences",
			in: `30 | 09
				30 | 03
					01 | 01 | ff
				30 | 02
					30 | 00`,
			exp: Sequence(
				Sequence(Primitive(TagBoolean, []byte{0xff})),
				Sequence(Sequence()),
			),
			n: 11,
		},
		{
			name: "long form length",
			in:   "04 | 81 03 | 010203",
			exp:  Primitive(TagOctetString, []byte{1, 2, 3}),
			n:    6,
		},
		{
			name: "four length octets",
			in:   "04 | 84 00000003 | 010203",
			exp:  Primitive(TagOctetString, []byte{1, 2, 3}),
			n:    9,
		},
		{
			name: "trailing bytes are ignored",
			in:   "02 | 01 | 05 ffff",
			exp:  Primitive(TagInteger, []byte{0x05}),
			n:    3,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b := Hex2bytes(test.in)
			n, l, err := DecodeNext(b)
			require.NoError(t, err)
			assert.Equal(t, test.exp, n)
			assert.True(t, test.exp.Equal(n))
			assert.Equal(t, test.n, l)

			n2, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, n, n2)
		})
	}
}

func TestDecode_errors(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		err    error
		offset int
	}{
		{
			name: "empty",
			in:   "",
			err:  ErrTruncated,
		},
		{
			name: "missing length",
			in:   "02",
			err:  ErrTruncated,
		},
		{
			name: "content past end of buffer",
			in:   "04 | 05 | 0102",
			err:  ErrTruncated,
		},
		{
			name: "missing length octets",
			in:   "04 | 82 01",
			err:  ErrTruncated,
		},
		{
			name: "five length octets",
			in:   "04 | 85 0000000001 | aa",
			err:  ErrObjectTooLarge,
		},
		{
			name: "indefinite length",
			in:   "30 | 80 | 020105 0000",
			err:  ErrUnsupportedInput,
		},
		{
			name: "empty bit string",
			in:   "03 | 00",
			err:  ErrTruncated,
		},
		{
			// the sequence's children are bounded by its own length, even
			// though the buffer has more bytes after it
			name: "child overruns sequence",
			in: `30 | 05
				02 | 01 | 05
				04 | 02 |
				aabb`,
			err:    ErrTruncated,
			offset: 5,
		},
		{
			name: "child overruns nested sequence",
			in: `30 | 06
				30 | 04
					02 | 03 | 0102`,
			err:    ErrTruncated,
			offset: 4,
		},
		{
			name: "truncated child header",
			in: `30 | 04
				02 | 01 | 05
				04`,
			err:    ErrTruncated,
			offset: 5,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			n, l, err := DecodeNext(Hex2bytes(test.in))
			require.Error(t, err)
			assert.True(t, merry.Is(err, test.err), "expected %v, got %v", test.err, merry.Details(err))
			assert.Equal(t, test.offset, Offset(err))
			assert.Zero(t, l)
			assert.Equal(t, Node{}, n)
		})
	}
}

func TestDecode_copiesPayloads(t *testing.T) {
	b := Hex2bytes("30 | 07 | 02 01 05 | 03 02 04 f0")
	n, err := Decode(b)
	require.NoError(t, err)

	for i := range b {
		b[i] = 0
	}

	assert.Equal(t, Sequence(
		Primitive(TagInteger, []byte{0x05}),
		NewBitString([]byte{0xf0}, 4),
	), n)
}

func TestDecodeAll(t *testing.T) {
	nodes, err := DecodeAll(Hex2bytes("02 01 05 | 01 01 ff | 30 00"))
	require.NoError(t, err)
	assert.Equal(t, Nodes{
		Primitive(TagInteger, []byte{0x05}),
		Primitive(TagBoolean, []byte{0xff}),
		Sequence(),
	}, nodes)

	nodes, err = DecodeAll(nil)
	require.NoError(t, err)
	assert.Empty(t, nodes)

	_, err = DecodeAll(Hex2bytes("02 01 05 | 01 01 ff | 30 02 05"))
	require.Error(t, err)
	assert.True(t, merry.Is(err, ErrTruncated))
	assert.Equal(t, 6, Offset(err))
}

func TestOffset(t *testing.T) {
	assert.Equal(t, -1, Offset(nil))
	assert.Equal(t, -1, Offset(merry.New("boom")))
	assert.Equal(t, 3, Offset(withOffset(merry.Here(ErrTruncated), 3)))
	// innermost offset wins
	assert.Equal(t, 3, Offset(withOffset(withOffset(merry.Here(ErrTruncated), 3), 0)))
}

func TestDecoder_Decode(t *testing.T) {
	b := Hex2bytes(`
		02 01 05
		30 81 03 | 01 01 ff
		04 84 00000002 | abcd`)
	dec := NewDecoder(bytes.NewReader(b))

	n, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, Primitive(TagInteger, []byte{0x05}), n)

	n, err = dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, Sequence(Primitive(TagBoolean, []byte{0xff})), n)

	raw, err := dec.NextTLV()
	require.NoError(t, err)
	assert.Equal(t, Hex2bytes("04 84 00000002 | abcd"), raw)

	_, err = dec.Decode()
	assert.Equal(t, io.EOF, err)
}

func TestDecoder_NextTLV_errors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		maxSize int
		err     error
	}{
		{name: "truncated header", in: "02", err: ErrTruncated},
		{name: "truncated length octets", in: "04 82 01", err: ErrTruncated},
		{name: "truncated content", in: "04 03 0102", err: ErrTruncated},
		{name: "five length octets", in: "04 85 0000000001 aa", err: ErrObjectTooLarge},
		{name: "indefinite length", in: "30 80 0000", err: ErrUnsupportedInput},
		{name: "over max size", in: "04 03 010203", maxSize: 4, err: ErrObjectTooLarge},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dec := NewDecoder(bytes.NewReader(Hex2bytes(test.in)))
			dec.MaxSize = test.maxSize
			_, err := dec.NextTLV()
			require.Error(t, err)
			assert.True(t, merry.Is(err, test.err), "expected %v, got %v", test.err, merry.Details(err))
		})
	}
}

func TestDecoder_Reset(t *testing.T) {
	dec := NewDecoder(bytes.NewReader(Hex2bytes("02 01 05")))
	dec.Reset(bytes.NewReader(Hex2bytes("01 01 00")))

	n, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, Primitive(TagBoolean, []byte{0x00}), n)
}

func TestDecoder_Buffered(t *testing.T) {
	dec := NewDecoder(bytes.NewReader(Hex2bytes("0500 | 0201")))
	assert.Equal(t, 0, dec.Buffered())

	raw, err := dec.NextTLV()
	require.NoError(t, err)
	assert.Equal(t, Hex2bytes("0500"), raw)
	// the start of the next, incomplete, object
	assert.Equal(t, 2, dec.Buffered())
}

func BenchmarkDecode(b *testing.B) {
	children := make(Nodes, 200)
	for i := range children {
		children[i] = Primitive(TagOctetString, bytes.Repeat([]byte{byte(i)}, i))
	}
	enc, err := Encode(Sequence(children...))
	require.NoError(b, err)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Decode(enc)
	}
}
