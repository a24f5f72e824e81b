package x402

import (
	"context"
	"net/http"
	"net/url"
)

// Protocol constants.
const (
	// ProtocolVersion is the x402 protocol version carried in headers and
	// 402 response bodies.
	ProtocolVersion = 1

	// SchemeExact is the only payment scheme this package implements: the
	// payer authorizes the exact amount quoted by the server.
	SchemeExact = "exact"
)

// HTTP header names used by the protocol.
const (
	// PaymentHeaderName carries the base64-encoded PaymentHeader on a request.
	PaymentHeaderName = "X-Payment"

	// PaymentResponseHeaderName carries the base64-encoded PaymentResponse
	// on a successfully paid response.
	PaymentResponseHeaderName = "X-Payment-Response"

	// PaymentRequiredHeaderName mirrors the 402 body as a base64 header so
	// non-JSON clients can still read the offer.
	PaymentRequiredHeaderName = "Payment-Required"
)

// PaymentRequirements is a server-issued price quote for one resource.
// It is immutable once issued; a client answers it with a signed payment
// covering exactly MaxAmountRequired to PayTo on Network.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	PayTo             string                 `json:"payTo"`
	MaxAmountRequired string                 `json:"maxAmountRequired"`
	Asset             string                 `json:"asset,omitempty"`
	Resource          string                 `json:"resource"`
	Description       string                 `json:"description,omitempty"`
	MimeType          string                 `json:"mimeType,omitempty"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds,omitempty"`
	OutputSchema      map[string]interface{} `json:"outputSchema,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// PaymentPayload is the concrete payment authorization a payer constructs in
// response to an offer. Amount is a base-10 integer string in the smallest
// unit. ValidUntil is an absolute expiry in milliseconds since the Unix epoch
// and is never extended after construction. Nonce is a single-use random
// token whose only purpose is replay prevention on the ledger side.
type PaymentPayload struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Amount     string `json:"amount"`
	Nonce      string `json:"nonce"`
	ValidUntil uint64 `json:"validUntil"`
	Asset      string `json:"asset,omitempty"`
}

// SignedPayment wraps a payload for transport. Payload is the JSON-serialized
// PaymentPayload; the signature does not cover these bytes directly but the
// hash of the canonical encoding re-derived from them (see substrate.Codec).
// Signature is hex without a 0x prefix; Signer is the payer's address.
type SignedPayment struct {
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
	Signer    string `json:"signer"`
}

// PaymentHeader is the decoded form of the X-Payment request header.
type PaymentHeader struct {
	X402Version int           `json:"x402Version"`
	Scheme      string        `json:"scheme"`
	Network     string        `json:"network"`
	Payload     SignedPayment `json:"payload"`
	Asset       string        `json:"asset,omitempty"`
}

// PaymentRequiredResponse is the 402 response body.
type PaymentRequiredResponse struct {
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Error       string                `json:"error,omitempty"`
}

// PaymentResponse is sent in the X-Payment-Response header after a paid
// request is admitted.
type PaymentResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// SettlementResult is what the settlement delegate reports after executing
// the authorized transfer on-chain.
type SettlementResult struct {
	Confirmed     bool
	BlockNumber   uint64
	BlockHash     string
	ExtrinsicHash string
}

// PaymentContext is attached to the request context after the full
// validation pipeline passes. It lives only for the request.
type PaymentContext struct {
	Verified         bool
	ConfirmedOnChain bool
	Payer            string
	Amount           string
	Network          string
	Settlement       *SettlementResult
}

// RequestInfo is the immutable view of a request the validation pipeline
// operates over. It is built once per request, from an http.Request or from
// gRPC method and metadata, so the pipeline never touches framework objects.
type RequestInfo struct {
	Method string
	Path   string
	Header http.Header
	Query  url.Values
}

// RequestInfoFromHTTP builds a RequestInfo snapshot from an HTTP request.
func RequestInfoFromHTTP(r *http.Request) RequestInfo {
	return RequestInfo{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Query:  r.URL.Query(),
	}
}

// Signer is the injected signing capability: given the 32-byte message hash,
// it returns the signature bytes and the signer's address. A local keypair,
// a remote wallet, or a hardware signer can all satisfy it.
type Signer interface {
	Sign(message []byte) (signature []byte, signer string, err error)
}

// PaymentSigner builds and signs a payment payload satisfying an offer.
// The client negotiator uses it to turn the selected offer into an
// attachable SignedPayment.
type PaymentSigner interface {
	SignPayment(offer *PaymentRequirements) (*SignedPayment, error)
}

// PayloadVerifier checks a received SignedPayment: canonical re-encoding,
// hash, signature, and signer/payer identity match. Any failure is a false
// return, never an error.
type PayloadVerifier interface {
	VerifyPayment(signed *SignedPayment) bool
}

// Settler executes an authorized transfer through the settlement delegate.
// Implementations return a *PaymentError coded ErrCodeSettlementRejected when
// the delegate answered non-ok, and ErrCodeSettlementUnavailable when it
// could not be reached.
type Settler interface {
	Settle(ctx context.Context, payload *PaymentPayload, signature, network string) (*SettlementResult, error)
}

type contextKey string

// PaymentContextKey is the key used to store the PaymentContext in the
// request context.
const PaymentContextKey contextKey = "x402-payment"

// GetPaymentFromContext extracts payment information from the request context.
func GetPaymentFromContext(ctx context.Context) (*PaymentContext, bool) {
	payment, ok := ctx.Value(PaymentContextKey).(*PaymentContext)
	return payment, ok
}

// RequirePayment extracts payment from context and errors if it is missing
// or unverified. Useful in handlers that must have a valid payment.
func RequirePayment(ctx context.Context) (*PaymentContext, error) {
	payment, ok := GetPaymentFromContext(ctx)
	if !ok {
		return nil, NewPaymentError(ErrCodeInvalidPayment, "payment context not found", nil)
	}
	if !payment.Verified {
		return nil, NewPaymentError(ErrCodeInvalidPayment, "payment not verified", nil)
	}
	return payment, nil
}
