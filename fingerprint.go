package der

import (
	"encoding/hex"

	"github.com/gemalto/der-go/tlv"
	"github.com/zeebo/blake3"
)

// Hash is a BLAKE3-256 digest.
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Fingerprint returns the BLAKE3-256 digest of the canonical (DER) encoding
// of n.  Trees which differ only in the length forms used by their original
// encodings have the same fingerprint.
func Fingerprint(n tlv.Node) (Hash, error) {
	hasher := blake3.New()
	if err := tlv.NewEncoder(hasher).Encode(n); err != nil {
		return Hash{}, err
	}
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h, nil
}
