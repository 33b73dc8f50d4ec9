package tlv

import (
	"fmt"
	"strings"

	"github.com/ansel1/merry"
	"github.com/gemalto/der-go/internal/tlvutil"
)

// Tag is the single identifier octet which starts every encoded object.  It
// packs the class, the constructed bit, and the tag number, but the codec
// treats it as an opaque byte: only TagSequence and TagBitString get special
// handling.
type Tag byte

const (
	TagBoolean          Tag = 0x01
	TagInteger          Tag = 0x02
	TagBitString        Tag = 0x03
	TagOctetString      Tag = 0x04
	TagNull             Tag = 0x05
	TagObjectIdentifier Tag = 0x06
	TagEnumerated       Tag = 0x0A
	TagUTF8String       Tag = 0x0C
	TagPrintableString  Tag = 0x13
	TagT61String        Tag = 0x14
	TagIA5String        Tag = 0x16
	TagUTCTime          Tag = 0x17
	TagGeneralizedTime  Tag = 0x18
	TagBMPString        Tag = 0x1E
	TagSequence         Tag = 0x30
	TagSet              Tag = 0x31
)

func init() {
	RegisterTag(TagBoolean, "BOOLEAN")
	RegisterTag(TagInteger, "INTEGER")
	RegisterTag(TagBitString, "BIT STRING")
	RegisterTag(TagOctetString, "OCTET STRING")
	RegisterTag(TagNull, "NULL")
	RegisterTag(TagObjectIdentifier, "OBJECT IDENTIFIER")
	RegisterTag(TagEnumerated, "ENUMERATED")
	RegisterTag(TagUTF8String, "UTF8String")
	RegisterTag(TagPrintableString, "PrintableString")
	RegisterTag(TagT61String, "T61String")
	RegisterTag(TagIA5String, "IA5String")
	RegisterTag(TagUTCTime, "UTCTime")
	RegisterTag(TagGeneralizedTime, "GeneralizedTime")
	RegisterTag(TagBMPString, "BMPString")
	RegisterTag(TagSequence, "SEQUENCE")
	RegisterTag(TagSet, "SET")
}

var _TagValueToFullNameMap = map[Tag]string{}
var _TagValueToNameMap = map[Tag]string{}
var _TagNameToValueMap = map[string]Tag{}

// RegisterTag associates a name with a tag value.  The name is normalized,
// so "OCTET STRING" is registered as "OctetString".  RegisterTag is not
// safe to call concurrently with encoding or decoding; call it from init().
func RegisterTag(tag Tag, name string) {
	_TagValueToFullNameMap[tag] = name
	name = tlvutil.NormalizeName(name)
	_TagNameToValueMap[name] = tag
	_TagValueToNameMap[tag] = name
}

// ParseTag parses either a registered tag name, or a hex string
// of exactly one byte, like "0x30".
func ParseTag(s string) (Tag, error) {
	if strings.HasPrefix(s, "0x") {
		u, err := tlvutil.ParseUint8(s)
		if err != nil {
			return 0, merry.Prepend(err, "invalid hex string, should be 0x[a-fA-F0-9][a-fA-F0-9]")
		}
		return Tag(u), nil
	}
	if v, ok := _TagNameToValueMap[s]; ok {
		return v, nil
	}
	if v, ok := _TagNameToValueMap[tlvutil.NormalizeName(s)]; ok {
		return v, nil
	}
	return 0, merry.Errorf("invalid tag \"%s\"", s)
}

// String returns the normalized name of the tag, or its hex value, e.g. "0xa0",
// if the tag isn't registered.
func (t Tag) String() string {
	if s, ok := _TagValueToNameMap[t]; ok {
		return s
	}
	return fmt.Sprintf("%#02x", byte(t))
}

// FullName returns the name the tag was registered with, e.g. "OCTET STRING".
func (t Tag) FullName() string {
	if s, ok := _TagValueToFullNameMap[t]; ok {
		return s
	}
	return fmt.Sprintf("%#02x", byte(t))
}

// Constructed reports whether the constructed bit is set in the tag.
func (t Tag) Constructed() bool {
	return t&0x20 != 0
}

// Class returns the two class bits of the tag: 0x00 universal, 0x40 application,
// 0x80 context-specific, 0xC0 private.
func (t Tag) Class() byte {
	return byte(t) & 0xC0
}

func (t Tag) MarshalText() (text []byte, err error) {
	return []byte(t.String()), nil
}

func (t *Tag) UnmarshalText(text []byte) (err error) {
	*t, err = ParseTag(string(text))
	return
}
