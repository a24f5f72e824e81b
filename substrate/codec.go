package substrate

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"golang.org/x/crypto/blake2b"

	x402 "github.com/httpusd/x402-go"
)

// Canonical encoding sizes. The layout matches the on-chain verifier, which
// concatenates the SCALE encodings of the payload fields with no separators:
// from (32 raw bytes), to (32 raw bytes), amount (u128 little-endian,
// 16 bytes), nonce (the bytes of its textual form, variable length), and
// validUntil (u64 little-endian, 8 bytes).
const (
	amountLength     = 16
	validUntilLength = 8
)

// signingContext is the sr25519 transcript context Substrate signs under.
var signingContext = []byte("substrate")

// Codec canonically encodes payment payloads for one network, identified by
// its SS58 prefix. Verifiers and payers are constructed around a Codec
// instead of sharing any ambient crypto state.
type Codec struct {
	prefix uint16
}

// NewCodec creates a codec for the given SS58 network prefix.
func NewCodec(ss58Prefix uint16) *Codec {
	return &Codec{prefix: ss58Prefix}
}

// Prefix returns the codec's SS58 network prefix.
func (c *Codec) Prefix() uint16 {
	return c.prefix
}

// EncodePayload produces the exact byte sequence the signature covers the
// hash of. The encoding is deliberately sensitive to representation: the
// nonce contributes the bytes of its textual form as generated (lowercase
// hex, no 0x prefix), not bytes decoded from hex, because the remote
// verifier concatenates the identical bytes.
func (c *Codec) EncodePayload(payload *x402.PaymentPayload) ([]byte, error) {
	from, err := DecodeAddress(payload.From, c.prefix)
	if err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	to, err := DecodeAddress(payload.To, c.prefix)
	if err != nil {
		return nil, fmt.Errorf("invalid to address: %w", err)
	}
	amount, err := encodeAmount(payload.Amount)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, PublicKeyLength*2+amountLength+len(payload.Nonce)+validUntilLength)
	buf = append(buf, from[:]...)
	buf = append(buf, to[:]...)
	buf = append(buf, amount[:]...)
	buf = append(buf, []byte(payload.Nonce)...)

	var validUntil [validUntilLength]byte
	binary.LittleEndian.PutUint64(validUntil[:], payload.ValidUntil)
	buf = append(buf, validUntil[:]...)

	return buf, nil
}

// HashPayload returns the blake2b-256 digest of the canonical encoding.
// This is the message the sr25519 signature is computed over.
func (c *Codec) HashPayload(payload *x402.PaymentPayload) ([32]byte, error) {
	encoded, err := c.EncodePayload(payload)
	if err != nil {
		return [32]byte{}, err
	}
	return blake2b.Sum256(encoded), nil
}

// encodeAmount renders a base-10 amount string as an unsigned 128-bit
// little-endian integer.
func encodeAmount(amount string) ([amountLength]byte, error) {
	var out [amountLength]byte

	value, err := x402.ParseAmount(amount)
	if err != nil {
		return out, fmt.Errorf("invalid amount: %w", err)
	}
	if value.BitLen() > 128 {
		return out, fmt.Errorf("amount %s overflows u128", amount)
	}

	// big.Int renders big-endian; reverse into the fixed-width buffer.
	be := value.Bytes()
	for i, b := range be {
		out[len(be)-1-i] = b
	}
	return out, nil
}

// amountFromLE is the inverse of encodeAmount, used in tests and tooling.
func amountFromLE(in [amountLength]byte) *big.Int {
	be := make([]byte, amountLength)
	for i, b := range in {
		be[amountLength-1-i] = b
	}
	return new(big.Int).SetBytes(be)
}
