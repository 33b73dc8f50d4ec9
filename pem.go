package der

import (
	"encoding/pem"
	"errors"

	"github.com/ansel1/merry"
	"github.com/gemalto/der-go/tlv"
)

// ErrNoPEMData is returned by DecodePEM when the input contains no PEM blocks.
var ErrNoPEMData = errors.New("no PEM data found")

// Block is a decoded PEM block.
type Block struct {
	// Type is taken from the preamble, e.g. "CERTIFICATE".
	Type    string
	Headers map[string]string
	Node    tlv.Node
}

// DecodePEM decodes every PEM block in data, and decodes each block's body
// as a single DER object.  Text outside of the blocks is ignored.
func DecodePEM(data []byte) ([]Block, error) {
	var blocks []Block
	for i := 0; ; i++ {
		var p *pem.Block
		p, data = pem.Decode(data)
		if p == nil {
			break
		}

		n, l, err := tlv.DecodeNext(p.Bytes)
		if err != nil {
			return nil, merry.Prependf(err, "PEM block %d (%s)", i, p.Type)
		}
		if l != len(p.Bytes) {
			return nil, merry.Here(ErrUnsupportedInput).Appendf("PEM block %d (%s) has %d bytes of trailing data", i, p.Type, len(p.Bytes)-l)
		}
		blocks = append(blocks, Block{Type: p.Type, Headers: p.Headers, Node: n})
	}
	if len(blocks) == 0 {
		return nil, merry.Here(ErrNoPEMData)
	}
	return blocks, nil
}

// EncodePEM encodes n, and armors it in a PEM block of the given type.
func EncodePEM(typ string, n tlv.Node) ([]byte, error) {
	b, err := tlv.Encode(n)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: b}), nil
}
