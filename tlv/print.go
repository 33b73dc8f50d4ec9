package tlv

import (
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ansel1/merry"
	"golang.org/x/crypto/cryptobyte"
)

// Print writes a human readable outline of the encoded objects in b, one line
// per object, children indented under their SEQUENCE:
//
//	Sequence (6):
//	  Integer (1): 5
//	  Boolean (1): true
//
// Print tolerates malformed input: it prints as much as it can make sense of,
// then the remaining bytes in hex, and returns the decode error.
func Print(w io.Writer, prefix, indent string, b []byte) error {
	for off := 0; off < len(b); {
		if off > 0 {
			fmt.Fprint(w, "\n")
		}
		n, err := printTLV(w, prefix, indent, b[off:])
		if err != nil {
			return err
		}
		off += n
	}
	return nil
}

func printTLV(w io.Writer, prefix, indent string, b []byte) (int, error) {
	tag, hl, l, err := parseHeader(b)
	if err != nil {
		// there are no markers to pick back up again, so print the rest and give up
		fmt.Fprintf(w, "%s(%s) %#x", prefix, errKind(err), b)
		return len(b), err
	}

	fmt.Fprintf(w, "%s%v (%d):", prefix, tag, l)

	if len(b)-hl < l {
		fmt.Fprintf(w, " (%s) %#x", ErrTruncated, b[hl:])
		return len(b), merry.Here(ErrTruncated).Appendf("%v declares %d content bytes, only %d remain", tag, l, len(b)-hl)
	}
	raw := b[:hl+l]
	content := raw[hl:]

	switch tag {
	case TagSequence:
		for off := 0; off < l; {
			fmt.Fprint(w, "\n")
			n, err := printTLV(w, prefix+indent, indent, content[off:])
			if err != nil {
				return hl + off + n, err
			}
			off += n
		}
	case TagBitString:
		if l < 1 {
			fmt.Fprintf(w, " (%s)", ErrTruncated)
			return hl + l, merry.Here(ErrTruncated).Append("BIT STRING is missing its unused bits octet")
		}
		fmt.Fprintf(w, " %#x (%d unused bits)", content[1:], content[0])
	case TagNull:
	default:
		fmt.Fprint(w, " ", formatValue(tag, raw, content))
	}
	return hl + l, nil
}

// formatValue renders the content of a primitive according to its universal
// type, falling back to hex.
func formatValue(tag Tag, raw, content []byte) string {
	s := cryptobyte.String(raw)
	switch tag {
	case TagBoolean:
		var v bool
		if s.ReadASN1Boolean(&v) {
			return fmt.Sprint(v)
		}
	case TagObjectIdentifier:
		var oid asn1.ObjectIdentifier
		if s.ReadASN1ObjectIdentifier(&oid) {
			return oid.String()
		}
	case TagInteger, TagEnumerated:
		if len(content) > 0 && len(content) <= 8 {
			n := Node{Tag: tag, Value: content}
			if i, err := n.BigInt(); err == nil {
				return i.String()
			}
		}
	case TagUTF8String, TagPrintableString, TagIA5String, TagT61String, TagUTCTime, TagGeneralizedTime:
		if utf8.Valid(content) {
			return fmt.Sprintf("%q", string(content))
		}
	}
	return fmt.Sprintf("%#x", content)
}

// errKind returns the message of the codec error kind err belongs to.
func errKind(err error) string {
	for _, kind := range []error{ErrTruncated, ErrObjectTooLarge, ErrUnsupportedInput} {
		if merry.Is(err, kind) {
			return kind.Error()
		}
	}
	return err.Error()
}

// PrintPrettyHex writes the encoded objects in b as hex, with the tag, length,
// and value separated by pipes, and children indented:
//
//	30 | 06
//	  02 | 01 | 05
//	  01 | 01 | ff
//
// Like Print, it tolerates malformed input, writing out the remaining bytes as
// plain hex, but it doesn't return an error in that case.  The output is valid
// input to Hex2bytes.
func PrintPrettyHex(w io.Writer, prefix, indent string, b []byte) error {
	for off := 0; off < len(b); {
		if off > 0 {
			if _, err := fmt.Fprint(w, "\n"); err != nil {
				return err
			}
		}
		n, err := printPrettyHex(w, prefix, indent, b[off:])
		if err != nil {
			return err
		}
		off += n
	}
	return nil
}

func printPrettyHex(w io.Writer, prefix, indent string, b []byte) (int, error) {
	tag, hl, l, err := parseHeader(b)
	if err != nil || len(b)-hl < l {
		// print the rest as plain hex
		_, err := fmt.Fprint(w, prefix, hex.EncodeToString(b))
		return len(b), err
	}

	if _, err := fmt.Fprintf(w, "%s%02x | %x", prefix, byte(tag), b[1:hl]); err != nil {
		return 0, err
	}
	content := b[hl : hl+l]
	if tag != TagSequence {
		if l > 0 {
			if _, err := fmt.Fprintf(w, " | %x", content); err != nil {
				return 0, err
			}
		}
		return hl + l, nil
	}

	for off := 0; off < l; {
		if _, err := fmt.Fprint(w, "\n"); err != nil {
			return 0, err
		}
		n, err := printPrettyHex(w, prefix+indent, indent, content[off:])
		if err != nil {
			return 0, err
		}
		off += n
	}
	return hl + l, nil
}

// ParseHex converts a hex string to bytes.  Any non-hex characters in the
// string, like whitespace, pipes, or "0x" prefixes, are ignored.  The
// remaining hex characters must form whole bytes.
func ParseHex(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, "0x", "")
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return -1
		}
		return r
	}, s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, merry.Prepend(err, "invalid hex")
	}
	return b, nil
}

// Hex2bytes is like ParseHex, but panics if the hex is invalid, e.g. an odd
// number of hex characters.  Handy for fixtures.
func Hex2bytes(s string) []byte {
	b, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return b
}
