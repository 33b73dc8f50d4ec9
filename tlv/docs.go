// Package tlv decodes and encodes the tag-length-value binary format of the
// ASN.1 Basic and Distinguished Encoding Rules (BER/DER), as used by X.509
// certificates, PKCS#1/PKCS#8 keys, and similar interchange formats.
//
// The core representation is the Node tree.  Decode turns a byte buffer into a
// tree, and Encode turns a tree back into bytes.  The codec implements a
// practical subset of BER:
//
//   - tags are a single opaque byte.  0x30 (SEQUENCE) is the only composite
//     type, and its children are decoded recursively.  Every other tag is a
//     primitive, and its content is kept as raw bytes.
//   - BIT STRING (0x03) content is split into the unused-bits count and the
//     bit data.
//   - only definite lengths are supported, in the short form (0-127) or the
//     long form with 1 to 4 length octets.  The indefinite form is rejected.
//
// Decoding accepts any valid length form.  Encoding always produces the
// minimal (DER) length form, so decoding then encoding a BER object
// normalizes its lengths.
//
// Errors
//
// Failures are reported as one of three kinds, which can be tested with
// merry.Is or errors.Is: ErrTruncated, ErrObjectTooLarge, and
// ErrUnsupportedInput.  Decode errors also carry the offset of the failing
// object, available from Offset().
//
// Encodings
//
// Besides the binary format, trees can be marshaled to and from JSON, XML,
// YAML and CBOR, and pretty printed with Print and PrintPrettyHex.  These
// formats are meant for tooling and test fixtures, e.g.
//
//	{"tag":"Sequence","value":[{"tag":"Integer","value":"05"}]}
//
// Integers
//
// IntegerBytes and IntegerBytesList convert go integers and big.Ints into
// INTEGER content bytes, and Node.BigInt converts them back.
package tlv
