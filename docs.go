// Package der carries ASN.1 DER objects between programs: a TCP server and
// client which exchange one encoded object per request, PEM armoring, and
// content fingerprints.
//
// The codec itself lives in the tlv subpackage.  It decodes BER/DER bytes into
// a tree of tlv.Node values and encodes trees back to bytes, always using the
// minimal (DER) length form.  Only single-byte tags are supported, SEQUENCE
// (0x30) is the only constructed type, and lengths are limited to 4 length
// octets.
//
// Server
//
// Server works much like net/http's Server.  Each connection carries a stream
// of concatenated objects.  The server frames each request by peeking at its
// header, decodes it, and passes it to a Handler, which writes zero or more
// objects back.  Handlers can be wrapped by middleware like LoggingMiddleware.
//
//	srv := der.Server{
//		Handler: &der.LoggingMiddleware{Next: der.NormalizeHandler},
//	}
//	err := srv.ListenAndServe(":4433")
package der
