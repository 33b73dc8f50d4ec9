package tlv

import (
	"math"
	"math/big"
	"reflect"

	"github.com/ansel1/merry"
)

var one = big.NewInt(1)

// IntegerBytes converts a single non-negative integer into the content bytes
// of a DER INTEGER: big-endian, minimal, with a leading zero byte only when the
// high bit of the first byte would otherwise make the value look negative.
//
// v may be a *big.Int, big.Int, any go integer type, or a float64 (which
// is truncated).  Negative values return ErrUnsupportedInput.
func IntegerBytes(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case *big.Int:
		if t == nil {
			return nil, merry.Here(ErrUnsupportedInput).Append("nil *big.Int")
		}
		return bigIntBytes(t)
	case big.Int:
		return bigIntBytes(&t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, merry.Here(ErrUnsupportedInput).Appendf("can't convert %v to an integer", t)
		}
		bf := big.NewFloat(math.Trunc(t))
		bi, _ := bf.Int(nil)
		return bigIntBytes(bi)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return bigIntBytes(big.NewInt(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return bigIntBytes(new(big.Int).SetUint64(rv.Uint()))
	case reflect.Slice, reflect.Array:
		// a collection used where a single value is expected: take the first element
		if rv.Len() == 0 {
			return nil, merry.Here(ErrUnsupportedInput).Append("attempt to use zero-length collection as a single value")
		}
		return IntegerBytes(rv.Index(0).Interface())
	}
	return nil, merry.Here(ErrUnsupportedInput).Appendf("unsupported type to convert: %T", v)
}

// IntegerBytesList converts each member of a collection of integers, as
// IntegerBytes does.  v may be a slice or array of any type IntegerBytes
// accepts, including []interface{}.  A single value converts to a list of one.
func IntegerBytesList(v interface{}) ([][]byte, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
	default:
		b, err := IntegerBytes(v)
		if err != nil {
			return nil, err
		}
		return [][]byte{b}, nil
	}

	out := make([][]byte, rv.Len())
	for i := range out {
		b, err := IntegerBytes(rv.Index(i).Interface())
		if err != nil {
			return nil, merry.Prependf(err, "element %d", i)
		}
		out[i] = b
	}
	return out, nil
}

func bigIntBytes(i *big.Int) ([]byte, error) {
	if i.Sign() < 0 {
		return nil, merry.Here(ErrUnsupportedInput).Appendf("negative integer %v", i)
	}
	b := i.Bytes()
	if len(b) == 0 {
		return []byte{0}, nil
	}
	// if the first bit is a 1, it would read as a negative in
	// 2's complement, so prepend a zero
	if b[0]&0x80 != 0 {
		b = append([]byte{0}, b...)
	}
	return b, nil
}

// unmarshalBigInt sets the value of n to the big-endian two's complement
// value stored in the given data. If data[0]&80 != 0, the number
// is negative. If data is empty, the result will be 0.
func unmarshalBigInt(n *big.Int, data []byte) {
	n.SetBytes(data)
	if len(data) > 0 && data[0]&0x80 > 0 {
		// first byte is 1, so number is negative.
		// left shifting 1 by the length in bits of the data
		// then subtracting the value from that gives us the
		// twos complement.
		n.Sub(n, new(big.Int).Lsh(one, uint(len(data))*8))
	}
}
