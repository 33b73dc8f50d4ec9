package tlv

import (
	"errors"

	"github.com/ansel1/merry"
)

// Error kinds returned by the codec.  Test for them with merry.Is or errors.Is;
// the message text carries context but is not stable.
var (
	// ErrTruncated means a declared length runs past the end of the available
	// bytes, at the top level or inside a SEQUENCE.
	ErrTruncated = errors.New("truncated ASN.1 object")

	// ErrObjectTooLarge means a length needs more than 4 explicit length
	// octets, or an encoding doesn't fit in the encoder's scratch capacity.
	ErrObjectTooLarge = errors.New("ASN.1 object too large")

	// ErrUnsupportedInput means a value can't be represented by this codec,
	// e.g. a Node whose Value is neither Nodes, []byte, nor BitString.
	ErrUnsupportedInput = errors.New("unsupported ASN.1 input")
)

type errKey int

const (
	errorKeyOffset errKey = iota
)

func init() {
	merry.RegisterDetail("Offset", errorKeyOffset)
}

// withOffset records the position in the input where decoding failed.  The
// innermost offset wins, since it is the most precise.
func withOffset(err error, off int) error {
	if _, ok := merry.Value(err, errorKeyOffset).(int); ok {
		return err
	}
	return merry.WithValue(err, errorKeyOffset, off)
}

// Offset returns the byte offset, relative to the start of the buffer passed
// to the decoder, at which a decode error was detected.  Returns -1 if
// err does not carry an offset.
func Offset(err error) int {
	if off, ok := merry.Value(err, errorKeyOffset).(int); ok {
		return off
	}
	return -1
}
