package tlvutil

import (
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/ansel1/merry"
)

var ErrInvalidHexString = errors.New("invalid hex string")

// ParseHex decodes a hex string, with or without a "0x" prefix.
func ParseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, merry.Here(ErrInvalidHexString).WithCause(err)
	}
	return b, nil
}

// ParseUint8 parses a single byte value from a string.  The string
// may be a decimal number, or a hex string prefixed with "0x".
func ParseUint8(s string) (uint8, error) {
	if strings.HasPrefix(s, "0x") {
		b, err := ParseHex(s)
		if err != nil {
			return 0, err
		}
		if len(b) != 1 {
			return 0, merry.Here(ErrInvalidHexString).Appendf("must be exactly 1 byte (2 hex characters), got %d bytes", len(b))
		}
		return b[0], nil
	}
	i, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, merry.Wrap(err)
	}
	return uint8(i), nil
}
