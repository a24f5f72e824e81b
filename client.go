package x402

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Client is the payer-side negotiator: it issues a request, and when the
// server answers 402 it selects the first offer, builds and signs a payment
// through the injected PaymentSigner, and retries the request exactly once
// with the payment header attached. A second 402 is terminal.
type Client struct {
	httpClient *http.Client
	signer     PaymentSigner
	maxAmount  *big.Int
	network    string
	logger     logrus.FieldLogger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client. Timeouts and cancellation
// are the caller's concern; the negotiator adds none of its own.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxPayment caps the amount the client is willing to authorize, in
// atomic units. Offers above the cap fail with PAYMENT_TOO_EXPENSIVE before
// anything is signed or sent. Panics on an unparseable amount, consistent
// with configuration errors elsewhere in this package.
func WithMaxPayment(amount string) ClientOption {
	max, err := ParseAmount(amount)
	if err != nil {
		panic(fmt.Sprintf("invalid max payment amount: %v", err))
	}
	return func(c *Client) { c.maxAmount = max }
}

// WithNetwork records the network the caller expects to pay on. An offer on
// a different network is logged as a warning but still honored: the offer's
// network takes precedence for payload construction.
func WithNetwork(network string) ClientOption {
	return func(c *Client) { c.network = network }
}

// WithLogger sets the client logger.
func WithLogger(logger logrus.FieldLogger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a negotiating client around the given payment signer.
func NewClient(signer PaymentSigner, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		signer:     signer,
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do issues the request and transparently handles one 402/pay/retry cycle.
// Any response other than the first 402 is returned to the caller as-is,
// including error statuses from the paid retry: the negotiator's job ends at
// "payment was attempted". Requests with a body must be replayable
// (req.GetBody set, which net/http does for the common body types).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	required, err := readPaymentRequired(resp)
	if err != nil {
		return nil, err
	}
	offer := required.Accepts[0]

	if c.maxAmount != nil {
		price, err := ParseAmount(offer.MaxAmountRequired)
		if err != nil {
			return nil, NewPaymentError(ErrCodeMalformedOffer, "offer amount is not a valid integer", err)
		}
		if price.Cmp(c.maxAmount) > 0 {
			return nil, NewPaymentError(ErrCodePaymentTooExpensive,
				fmt.Sprintf("offer requires %s, client cap is %s", offer.MaxAmountRequired, c.maxAmount), nil)
		}
	}

	if c.network != "" && offer.Network != c.network {
		c.logger.WithFields(logrus.Fields{
			"configured": c.network,
			"offered":    offer.Network,
		}).Warn("offer network differs from configured network, using the offer's")
	}

	signed, err := c.signer.SignPayment(&offer)
	if err != nil {
		return nil, NewPaymentError(ErrCodeInvalidPayment, "failed to sign payment", err)
	}

	version := required.X402Version
	if version == 0 {
		version = ProtocolVersion
	}
	encoded, err := EncodePaymentHeader(&PaymentHeader{
		X402Version: version,
		Scheme:      offer.Scheme,
		Network:     offer.Network,
		Payload:     *signed,
		Asset:       offer.Asset,
	})
	if err != nil {
		return nil, err
	}

	retry, err := replayRequest(req)
	if err != nil {
		return nil, err
	}
	retry.Header.Set(PaymentHeaderName, encoded)

	resp2, err := c.httpClient.Do(retry)
	if err != nil {
		return nil, err
	}
	if resp2.StatusCode == http.StatusPaymentRequired {
		// One paid attempt only; a server that rejects it gets no third try.
		io.Copy(io.Discard, resp2.Body)
		resp2.Body.Close()
		return nil, NewPaymentError(ErrCodePaymentRejected, "server rejected the signed payment", nil)
	}

	return resp2, nil
}

// readPaymentRequired parses and validates a 402 response body, consuming it.
func readPaymentRequired(resp *http.Response) (*PaymentRequiredResponse, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewPaymentError(ErrCodeMalformedOffer, "failed to read 402 response body", err)
	}

	var required PaymentRequiredResponse
	if err := json.Unmarshal(body, &required); err != nil {
		return nil, NewPaymentError(ErrCodeMalformedOffer, "failed to parse 402 response body", err)
	}
	if len(required.Accepts) == 0 {
		return nil, NewPaymentError(ErrCodeMalformedOffer, "402 response carries no offers", nil)
	}

	return &required, nil
}

// replayRequest clones the original request for the paid retry.
func replayRequest(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return retry, nil
	}
	if req.GetBody == nil {
		return nil, NewPaymentError(ErrCodeInvalidPayment, "request body is not replayable", nil)
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, NewPaymentError(ErrCodeInvalidPayment, "failed to rewind request body", err)
	}
	retry.Body = body
	return retry, nil
}
