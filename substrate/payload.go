package substrate

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	x402 "github.com/httpusd/x402-go"
)

const (
	// NonceBytes is the entropy of a generated nonce before hex encoding.
	NonceBytes = 16

	// DefaultValidity is the validity window applied when the caller passes
	// a non-positive one.
	DefaultValidity = 5 * time.Minute
)

// NewNonce returns a fresh single-use nonce: NonceBytes of CSPRNG output,
// lowercase hex, no 0x prefix. The textual form is what enters the canonical
// encoding, so this format must never drift.
func NewNonce() string {
	var b [NonceBytes]byte
	// crypto/rand.Read does not fail on supported platforms.
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// NewPaymentPayload turns an offer into a concrete payment authorization
// from the given payer. The recipient, amount and asset are copied verbatim
// from the offer; there is no renegotiation of price. The expiry is fixed at
// construction and never extended.
func NewPaymentPayload(payer string, offer *x402.PaymentRequirements, validity time.Duration) *x402.PaymentPayload {
	if validity <= 0 {
		validity = DefaultValidity
	}
	return &x402.PaymentPayload{
		From:       payer,
		To:         offer.PayTo,
		Amount:     offer.MaxAmountRequired,
		Nonce:      NewNonce(),
		ValidUntil: uint64(time.Now().Add(validity).UnixMilli()),
		Asset:      offer.Asset,
	}
}
