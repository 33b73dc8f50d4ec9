package tlv

import (
	"encoding/hex"
	"encoding/json"

	"github.com/ansel1/merry"
	"github.com/gemalto/der-go/internal/tlvutil"
)

type jsonNode struct {
	Tag        Tag             `json:"tag"`
	Value      json.RawMessage `json:"value"`
	UnusedBits *uint8          `json:"unusedBits,omitempty"`
}

// MarshalJSON encodes the node as {"tag":<name>,"value":<value>}.  SEQUENCE
// values are arrays of nodes, primitive values are hex strings, and
// BIT STRINGs add an "unusedBits" field.
func (n Node) MarshalJSON() ([]byte, error) {
	out := jsonNode{Tag: n.Tag}
	var err error
	switch v := n.Value.(type) {
	case Nodes:
		if v == nil {
			v = Nodes{}
		}
		out.Value, err = json.Marshal([]Node(v))
	case BitString:
		ub := v.UnusedBits
		out.UnusedBits = &ub
		out.Value, err = json.Marshal(hex.EncodeToString(v.Bytes))
	case []byte:
		out.Value, err = json.Marshal(hex.EncodeToString(v))
	default:
		return nil, merry.Here(ErrUnsupportedInput).Appendf("%v has value of unsupported type %T", n.Tag, n.Value)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(&out)
}

func (n *Node) UnmarshalJSON(b []byte) error {
	var in jsonNode
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	if in.Tag == TagSequence {
		var children Nodes
		if err := json.Unmarshal(in.Value, &children); err != nil {
			return merry.Prependf(err, "%v: invalid value: must be an array of nodes", in.Tag)
		}
		*n = Sequence(children...)
		return nil
	}

	var s string
	if err := json.Unmarshal(in.Value, &s); err != nil {
		return merry.Prependf(err, "%v: invalid value: must be hex string", in.Tag)
	}
	v, err := primitiveValue(in.Tag, s, in.UnusedBits)
	if err != nil {
		return merry.Prependf(err, "%v: invalid value", in.Tag)
	}
	*n = v
	return nil
}

// primitiveValue builds a primitive node from the hex text form shared by
// the JSON, XML, and YAML encodings.
func primitiveValue(tag Tag, s string, unusedBits *uint8) (Node, error) {
	b, err := tlvutil.ParseHex(s)
	if err != nil {
		return Node{}, err
	}
	if tag == TagBitString {
		var ub uint8
		if unusedBits != nil {
			ub = *unusedBits
		}
		return NewBitString(b, ub), nil
	}
	return Primitive(tag, b), nil
}
