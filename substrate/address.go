package substrate

import (
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// PublicKeyLength is the raw sr25519 public key size an address decodes to.
const PublicKeyLength = 32

// ss58Prelude is mixed into the checksum hash per the SS58 registry.
var ss58Prelude = []byte("SS58PRE")

// EncodeAddress renders a 32-byte public key as an SS58 address under the
// given network prefix. Only single-byte prefixes (0..63) are supported,
// which covers the well-known networks.
func EncodeAddress(pub [PublicKeyLength]byte, prefix uint16) (string, error) {
	if prefix > 63 {
		return "", fmt.Errorf("unsupported ss58 prefix %d", prefix)
	}

	data := make([]byte, 0, 1+PublicKeyLength+2)
	data = append(data, byte(prefix))
	data = append(data, pub[:]...)

	checksum := ss58Checksum(data)
	data = append(data, checksum[:2]...)

	return base58.Encode(data), nil
}

// DecodeAddress parses an SS58 address back into its raw public key,
// verifying the network prefix and the checksum.
func DecodeAddress(address string, prefix uint16) ([PublicKeyLength]byte, error) {
	var pub [PublicKeyLength]byte

	data, err := base58.Decode(address)
	if err != nil {
		return pub, fmt.Errorf("invalid base58 address: %w", err)
	}
	if len(data) != 1+PublicKeyLength+2 {
		return pub, fmt.Errorf("invalid address length %d", len(data))
	}
	if prefix > 63 || data[0] != byte(prefix) {
		return pub, fmt.Errorf("address prefix %d does not match expected %d", data[0], prefix)
	}

	checksum := ss58Checksum(data[:1+PublicKeyLength])
	if data[1+PublicKeyLength] != checksum[0] || data[1+PublicKeyLength+1] != checksum[1] {
		return pub, fmt.Errorf("address checksum mismatch")
	}

	copy(pub[:], data[1:1+PublicKeyLength])
	return pub, nil
}

func ss58Checksum(data []byte) [64]byte {
	buf := make([]byte, 0, len(ss58Prelude)+len(data))
	buf = append(buf, ss58Prelude...)
	buf = append(buf, data...)
	return blake2b.Sum512(buf)
}
