package der

import (
	"github.com/ansel1/merry"
	"github.com/gemalto/der-go/tlv"
)

// The codec's error kinds, re-exported so callers of this package don't need
// to import tlv just to classify errors.
var (
	ErrTruncated        = tlv.ErrTruncated
	ErrObjectTooLarge   = tlv.ErrObjectTooLarge
	ErrUnsupportedInput = tlv.ErrUnsupportedInput
)

func Is(err error, originals ...error) bool {
	return merry.Is(err, originals...)
}

func Details(err error) string {
	return merry.Details(err)
}
