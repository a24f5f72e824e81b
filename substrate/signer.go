package substrate

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ChainSafe/go-schnorrkel"

	x402 "github.com/httpusd/x402-go"
)

// SignatureLength is the sr25519 signature size in bytes.
const SignatureLength = 64

// Keyring is a local sr25519 keypair implementing x402.Signer. Signatures
// are produced under the standard "substrate" signing context, which is what
// the on-chain verifier checks against.
type Keyring struct {
	secret  *schnorrkel.SecretKey
	public  *schnorrkel.PublicKey
	address string
}

// NewKeyringFromSeed builds a keyring from a 32-byte hex mini secret seed
// (with or without a 0x prefix), encoding its address under the given SS58
// prefix.
func NewKeyringFromSeed(seedHex string, ss58Prefix uint16) (*Keyring, error) {
	seedBytes, err := hex.DecodeString(strings.TrimPrefix(seedHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid seed hex: %w", err)
	}
	if len(seedBytes) != 32 {
		return nil, fmt.Errorf("seed must be 32 bytes, got %d", len(seedBytes))
	}

	var seed [32]byte
	copy(seed[:], seedBytes)
	mini, err := schnorrkel.NewMiniSecretKeyFromRaw(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid mini secret key: %w", err)
	}

	return newKeyring(mini, ss58Prefix)
}

// GenerateKeyring creates a keyring from a freshly generated mini secret.
func GenerateKeyring(ss58Prefix uint16) (*Keyring, error) {
	mini, err := schnorrkel.GenerateMiniSecretKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return newKeyring(mini, ss58Prefix)
}

func newKeyring(mini *schnorrkel.MiniSecretKey, ss58Prefix uint16) (*Keyring, error) {
	public := mini.Public()
	address, err := EncodeAddress(public.Encode(), ss58Prefix)
	if err != nil {
		return nil, err
	}
	return &Keyring{
		secret:  mini.ExpandEd25519(),
		public:  public,
		address: address,
	}, nil
}

// Address returns the keyring's SS58 address.
func (k *Keyring) Address() string {
	return k.address
}

// Sign signs the message under the substrate signing context and returns the
// raw 64-byte signature together with the signer's address.
func (k *Keyring) Sign(message []byte) ([]byte, string, error) {
	sig, err := k.secret.Sign(schnorrkel.NewSigningContext(signingContext, message))
	if err != nil {
		return nil, "", fmt.Errorf("sr25519 signing failed: %w", err)
	}
	encoded := sig.Encode()
	return encoded[:], k.address, nil
}

// Payer composes the payload builder, the canonical codec and a signing
// capability into an x402.PaymentSigner the client negotiator can use.
type Payer struct {
	codec    *Codec
	signer   x402.Signer
	address  string
	validity time.Duration
}

// NewPayer creates a payer identified by address, signing through signer.
// A non-positive validity falls back to DefaultValidity.
func NewPayer(codec *Codec, signer x402.Signer, address string, validity time.Duration) *Payer {
	return &Payer{
		codec:    codec,
		signer:   signer,
		address:  address,
		validity: validity,
	}
}

// SignPayment builds a payment payload for the offer, signs the blake2b hash
// of its canonical encoding, and wraps the result for transport.
func (p *Payer) SignPayment(offer *x402.PaymentRequirements) (*x402.SignedPayment, error) {
	payload := NewPaymentPayload(p.address, offer, p.validity)

	hash, err := p.codec.HashPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment: %w", err)
	}

	sig, signer, err := p.signer.Sign(hash[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign payment: %w", err)
	}
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("signer returned %d-byte signature, want %d", len(sig), SignatureLength)
	}
	if signer != p.address {
		return nil, fmt.Errorf("signer identity %s does not match payer %s", signer, p.address)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payment: %w", err)
	}

	return &x402.SignedPayment{
		Payload:   string(raw),
		Signature: hex.EncodeToString(sig),
		Signer:    signer,
	}, nil
}
