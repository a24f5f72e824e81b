package substrate

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/ChainSafe/go-schnorrkel"

	x402 "github.com/httpusd/x402-go"
)

// PayloadVerifier implements x402.PayloadVerifier for sr25519-signed
// payments. It re-derives the canonical encoding from the serialized
// payload, hashes it, and checks the signature under the signer's public
// key. Any failure (undecodable payload, bad address, bad signature
// encoding, cryptographic mismatch) is a false return, never an error.
type PayloadVerifier struct {
	codec *Codec
}

// NewPayloadVerifier creates a verifier around the given codec.
func NewPayloadVerifier(codec *Codec) *PayloadVerifier {
	return &PayloadVerifier{codec: codec}
}

// VerifyPayment reports whether the signed payment is authentic: the
// signature covers the hash of the canonical encoding and the payload's
// payer is the declared signer. The identity check stops a valid signature
// from authorizing a transfer out of someone else's account.
func (v *PayloadVerifier) VerifyPayment(signed *x402.SignedPayment) bool {
	if signed == nil {
		return false
	}

	var payload x402.PaymentPayload
	if err := json.Unmarshal([]byte(signed.Payload), &payload); err != nil {
		return false
	}

	if payload.From != signed.Signer {
		return false
	}

	hash, err := v.codec.HashPayload(&payload)
	if err != nil {
		return false
	}

	sigBytes, err := hex.DecodeString(strings.TrimPrefix(signed.Signature, "0x"))
	if err != nil || len(sigBytes) != SignatureLength {
		return false
	}
	var sigRaw [SignatureLength]byte
	copy(sigRaw[:], sigBytes)

	sig := new(schnorrkel.Signature)
	if err := sig.Decode(sigRaw); err != nil {
		return false
	}

	pubRaw, err := DecodeAddress(signed.Signer, v.codec.prefix)
	if err != nil {
		return false
	}
	pub := new(schnorrkel.PublicKey)
	if err := pub.Decode(pubRaw); err != nil {
		return false
	}

	ok, err := pub.Verify(sig, schnorrkel.NewSigningContext(signingContext, hash[:]))
	return err == nil && ok
}
