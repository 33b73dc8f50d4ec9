package tlv

import (
	"encoding/hex"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/ansel1/merry"
	"github.com/gemalto/der-go/internal/tlvutil"
)

// MarshalXML encodes the node as an element named after its tag.  Tags
// without a registered name use a "TLV" element with a "tag" attribute.
// Primitive values are hex in the "value" attribute, and children of a
// SEQUENCE are nested elements:
//
//	<Sequence>
//	  <Integer value="05"></Integer>
//	  <BitString value="f0" unusedBits="4"></BitString>
//	  <TLV tag="0x80" value="01"></TLV>
//	</Sequence>
func (n Node) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	var se xml.StartElement
	if name := n.Tag.String(); strings.HasPrefix(name, "0x") {
		se.Name.Local = "TLV"
		se.Attr = append(se.Attr, xml.Attr{Name: xml.Name{Local: "tag"}, Value: name})
	} else {
		se.Name.Local = name
	}

	switch v := n.Value.(type) {
	case Nodes:
		if err := e.EncodeToken(se); err != nil {
			return err
		}
		for _, c := range v {
			if err := e.Encode(c); err != nil {
				return err
			}
		}
		return e.EncodeToken(se.End())
	case BitString:
		se.Attr = append(se.Attr,
			xml.Attr{Name: xml.Name{Local: "value"}, Value: hex.EncodeToString(v.Bytes)},
			xml.Attr{Name: xml.Name{Local: "unusedBits"}, Value: strconv.Itoa(int(v.UnusedBits))},
		)
	case []byte:
		se.Attr = append(se.Attr, xml.Attr{Name: xml.Name{Local: "value"}, Value: hex.EncodeToString(v)})
	default:
		return merry.Here(ErrUnsupportedInput).Appendf("%v has value of unsupported type %T", n.Tag, n.Value)
	}

	if err := e.EncodeToken(se); err != nil {
		return err
	}
	return e.EncodeToken(se.End())
}

type xmlNode struct {
	XMLName    xml.Name
	Tag        string     `xml:"tag,attr,omitempty"`
	Value      string     `xml:"value,attr,omitempty"`
	UnusedBits string     `xml:"unusedBits,attr,omitempty"`
	Children   []*xmlNode `xml:",any"`
}

func (n *Node) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var x xmlNode
	if err := d.DecodeElement(&x, &start); err != nil {
		return err
	}
	v, err := x.node()
	if err != nil {
		return err
	}
	*n = v
	return nil
}

func (x *xmlNode) node() (Node, error) {
	name := x.Tag
	if name == "" {
		name = x.XMLName.Local
	}
	tag, err := ParseTag(name)
	if err != nil {
		return Node{}, err
	}

	if tag == TagSequence {
		children := make(Nodes, 0, len(x.Children))
		for _, c := range x.Children {
			cn, err := c.node()
			if err != nil {
				return Node{}, merry.Prepend(err, tag.String())
			}
			children = append(children, cn)
		}
		return Node{Tag: tag, Value: children}, nil
	}

	var unusedBits *uint8
	if x.UnusedBits != "" {
		ub, err := tlvutil.ParseUint8(x.UnusedBits)
		if err != nil {
			return Node{}, merry.Prependf(err, "%v: invalid unusedBits", tag)
		}
		unusedBits = &ub
	}
	v, err := primitiveValue(tag, x.Value, unusedBits)
	if err != nil {
		return Node{}, merry.Prependf(err, "%v: invalid value", tag)
	}
	return v, nil
}
