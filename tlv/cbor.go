package tlv

import (
	"github.com/ansel1/merry"
	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding, so the same tree always
// produces identical CBOR bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("tlv: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("tlv: CBOR decoder initialization failed: " + err.Error())
	}
}

// MarshalCBOR encodes the node as a CBOR array: [tag, [children...]] for a
// SEQUENCE, [tag, payload] for a primitive, and [tag, payload, unusedBits]
// for a BIT STRING.
func (n Node) MarshalCBOR() ([]byte, error) {
	switch v := n.Value.(type) {
	case Nodes:
		if v == nil {
			v = Nodes{}
		}
		return encMode.Marshal([]interface{}{uint8(n.Tag), []Node(v)})
	case BitString:
		b := v.Bytes
		if b == nil {
			b = []byte{}
		}
		return encMode.Marshal([]interface{}{uint8(n.Tag), b, v.UnusedBits})
	case []byte:
		if v == nil {
			v = []byte{}
		}
		return encMode.Marshal([]interface{}{uint8(n.Tag), v})
	default:
		return nil, merry.Here(ErrUnsupportedInput).Appendf("%v has value of unsupported type %T", n.Tag, n.Value)
	}
}

func (n *Node) UnmarshalCBOR(b []byte) error {
	var parts []cbor.RawMessage
	if err := decMode.Unmarshal(b, &parts); err != nil {
		return merry.Wrap(err)
	}
	if len(parts) < 2 || len(parts) > 3 {
		return merry.Here(ErrUnsupportedInput).Appendf("CBOR node must be an array of 2 or 3 items, got %d", len(parts))
	}

	var t uint8
	if err := decMode.Unmarshal(parts[0], &t); err != nil {
		return merry.Prepend(err, "invalid tag")
	}
	tag := Tag(t)

	if tag == TagSequence {
		var children Nodes
		if err := decMode.Unmarshal(parts[1], &children); err != nil {
			return merry.Prependf(err, "%v: invalid value: must be an array of nodes", tag)
		}
		*n = Sequence(children...)
		return nil
	}

	var payload []byte
	if err := decMode.Unmarshal(parts[1], &payload); err != nil {
		return merry.Prependf(err, "%v: invalid value: must be a byte string", tag)
	}
	if tag != TagBitString {
		*n = Primitive(tag, payload)
		return nil
	}

	var unusedBits uint8
	if len(parts) == 3 {
		if err := decMode.Unmarshal(parts[2], &unusedBits); err != nil {
			return merry.Prependf(err, "%v: invalid unused bits", tag)
		}
	}
	*n = NewBitString(payload, unusedBits)
	return nil
}
