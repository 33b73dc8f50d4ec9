package tlv

import (
	"encoding/hex"

	"github.com/ansel1/merry"
	"gopkg.in/yaml.v3"
)

type yamlNode struct {
	Tag        string      `yaml:"tag"`
	Value      interface{} `yaml:"value"`
	UnusedBits *uint8      `yaml:"unusedBits,omitempty"`
}

// MarshalYAML maps the node to the same shape as the JSON encoding:
//
//	tag: Sequence
//	value:
//	  - tag: Integer
//	    value: "05"
func (n Node) MarshalYAML() (interface{}, error) {
	out := yamlNode{Tag: n.Tag.String()}
	switch v := n.Value.(type) {
	case Nodes:
		if v == nil {
			v = Nodes{}
		}
		out.Value = []Node(v)
	case BitString:
		ub := v.UnusedBits
		out.UnusedBits = &ub
		out.Value = hex.EncodeToString(v.Bytes)
	case []byte:
		out.Value = hex.EncodeToString(v)
	default:
		return nil, merry.Here(ErrUnsupportedInput).Appendf("%v has value of unsupported type %T", n.Tag, n.Value)
	}
	return &out, nil
}

func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	var in struct {
		Tag        string    `yaml:"tag"`
		Value      yaml.Node `yaml:"value"`
		UnusedBits *uint8    `yaml:"unusedBits"`
	}
	if err := value.Decode(&in); err != nil {
		return err
	}
	tag, err := ParseTag(in.Tag)
	if err != nil {
		return err
	}

	if tag == TagSequence {
		var children Nodes
		if err := in.Value.Decode(&children); err != nil {
			return merry.Prependf(err, "%v: invalid value: must be a list of nodes", tag)
		}
		*n = Sequence(children...)
		return nil
	}

	var s string
	if err := in.Value.Decode(&s); err != nil {
		return merry.Prependf(err, "%v: invalid value: must be hex string", tag)
	}
	v, err := primitiveValue(tag, s, in.UnusedBits)
	if err != nil {
		return merry.Prependf(err, "%v: invalid value", tag)
	}
	*n = v
	return nil
}
