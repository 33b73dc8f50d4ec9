package tlv

import (
	"bytes"
	"math/big"

	"github.com/ansel1/merry"
)

// Node is one decoded ASN.1 object: a tag, and the value in the form of a
// native go type.  The type of Value determines the shape of the node:
//
//   - Nodes: a composite (SEQUENCE).  Tag must be TagSequence.
//   - BitString: a BIT STRING.  Tag must be TagBitString.
//   - []byte: any other primitive.  Tag must not be TagSequence.
//
// A Node owns its Value.  The decoder never shares bytes between nodes, or
// between a node and the decoded input, and the encoder never modifies a
// node, so trees may be freely edited between encodes.
type Node struct {
	Tag   Tag
	Value interface{}
}

// Nodes is the ordered list of children of a SEQUENCE.
type Nodes []Node

// BitString is the value of a BIT STRING node.  UnusedBits is the number of
// low order bits of the last byte which are padding, not data (0-7).  It is
// carried on the wire as a prefix byte which is not part of Bytes.
type BitString struct {
	Bytes      []byte
	UnusedBits uint8
}

// Sequence returns a SEQUENCE node containing children.
func Sequence(children ...Node) Node {
	if children == nil {
		children = Nodes{}
	}
	return Node{Tag: TagSequence, Value: Nodes(children)}
}

// Primitive returns a node with the given tag and payload.
func Primitive(tag Tag, payload []byte) Node {
	if payload == nil {
		payload = []byte{}
	}
	return Node{Tag: tag, Value: payload}
}

// NewBitString returns a BIT STRING node.
func NewBitString(b []byte, unusedBits uint8) Node {
	if b == nil {
		b = []byte{}
	}
	return Node{Tag: TagBitString, Value: BitString{Bytes: b, UnusedBits: unusedBits}}
}

// Integer returns an INTEGER node holding the minimal DER encoding of a
// non-negative integer.  See IntegerBytes for the accepted types.
func Integer(v interface{}) (Node, error) {
	b, err := IntegerBytes(v)
	if err != nil {
		return Node{}, err
	}
	return Primitive(TagInteger, b), nil
}

// IsSequence reports whether the node is a composite.
func (n Node) IsSequence() bool {
	_, ok := n.Value.(Nodes)
	return ok
}

// Children returns the children of a SEQUENCE, or nil for a primitive.
func (n Node) Children() Nodes {
	c, _ := n.Value.(Nodes)
	return c
}

// Bytes returns the payload of a primitive.  For a BIT STRING, it
// returns the bit data without the unused-bits prefix.  Returns nil
// for a composite.
func (n Node) Bytes() []byte {
	switch v := n.Value.(type) {
	case []byte:
		return v
	case BitString:
		return v.Bytes
	}
	return nil
}

// BitString returns the value of a BIT STRING node.  ok is false if the node
// isn't a BIT STRING.
func (n Node) BitString() (bs BitString, ok bool) {
	bs, ok = n.Value.(BitString)
	return
}

// BigInt interprets the payload as a big-endian two's complement integer,
// as used by the INTEGER and ENUMERATED types.
func (n Node) BigInt() (*big.Int, error) {
	b, ok := n.Value.([]byte)
	if !ok {
		return nil, merry.Here(ErrUnsupportedInput).Appendf("%v value is not an integer payload", n.Tag)
	}
	i := new(big.Int)
	unmarshalBigInt(i, b)
	return i, nil
}

// Len returns the number of content bytes the node occupies on the wire,
// i.e. the value of its length field.  It is computed from the children on
// every call, never cached.  Invalid nodes report 0.
func (n Node) Len() int {
	switch v := n.Value.(type) {
	case []byte:
		return len(v)
	case BitString:
		return len(v.Bytes) + 1
	case Nodes:
		var l int
		for _, c := range v {
			l += c.FullLen()
		}
		return l
	}
	return 0
}

// FullLen returns the full encoded size of the node: tag, length field, and content.
func (n Node) FullLen() int {
	l := n.Len()
	return 1 + lengthSize(l) + l
}

// Equal reports whether two trees are structurally identical: same tags,
// same child order, same payloads, and same unused bits.  nil and empty
// payloads compare equal.
func (n Node) Equal(o Node) bool {
	if n.Tag != o.Tag {
		return false
	}
	switch v := n.Value.(type) {
	case []byte:
		ov, ok := o.Value.([]byte)
		return ok && bytes.Equal(v, ov)
	case BitString:
		ov, ok := o.Value.(BitString)
		return ok && v.UnusedBits == ov.UnusedBits && bytes.Equal(v.Bytes, ov.Bytes)
	case Nodes:
		ov, ok := o.Value.(Nodes)
		if !ok || len(v) != len(ov) {
			return false
		}
		for i := range v {
			if !v[i].Equal(ov[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy of the tree.
func (n Node) Clone() Node {
	switch v := n.Value.(type) {
	case []byte:
		return Node{Tag: n.Tag, Value: append([]byte{}, v...)}
	case BitString:
		return Node{Tag: n.Tag, Value: BitString{Bytes: append([]byte{}, v.Bytes...), UnusedBits: v.UnusedBits}}
	case Nodes:
		c := make(Nodes, len(v))
		for i := range v {
			c[i] = v[i].Clone()
		}
		return Node{Tag: n.Tag, Value: c}
	}
	return n
}

// String returns the node pretty printed in the same text format as Print.
func (n Node) String() string {
	b, err := Encode(n)
	if err != nil {
		return n.Tag.String() + ": (" + err.Error() + ")"
	}
	buf := bytes.NewBuffer(nil)
	_ = Print(buf, "", "  ", b)
	return buf.String()
}
