package substrate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	x402 "github.com/httpusd/x402-go"
)

const defaultFacilitatorTimeout = 30 * time.Second

// FacilitatorClient talks to the settlement delegate: a trusted remote
// service that executes authorized transfers on-chain and reports their
// outcome. It implements x402.Settler. The delegate owns replay prevention;
// this client performs a single attempt per call and leaves retry policy to
// the caller.
type FacilitatorClient struct {
	url        string
	httpClient *http.Client
	logger     logrus.FieldLogger
}

// FacilitatorOption configures a FacilitatorClient.
type FacilitatorOption func(*FacilitatorClient)

// WithFacilitatorHTTPClient sets the underlying HTTP client.
func WithFacilitatorHTTPClient(hc *http.Client) FacilitatorOption {
	return func(c *FacilitatorClient) { c.httpClient = hc }
}

// WithFacilitatorLogger sets the client logger.
func WithFacilitatorLogger(logger logrus.FieldLogger) FacilitatorOption {
	return func(c *FacilitatorClient) { c.logger = logger }
}

// NewFacilitatorClient creates a settlement client POSTing to the given URL.
func NewFacilitatorClient(url string, opts ...FacilitatorOption) *FacilitatorClient {
	c := &FacilitatorClient{
		url: url,
		httpClient: &http.Client{
			Timeout: defaultFacilitatorTimeout,
		},
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settle submits the signed payment for on-chain execution. A delegate that
// answers non-ok yields ErrCodeSettlementRejected; a delegate that cannot be
// reached, times out, or answers garbage yields ErrCodeSettlementUnavailable.
// The validation pipeline maps these to 402 and 502 respectively.
func (c *FacilitatorClient) Settle(ctx context.Context, payload *x402.PaymentPayload, signature, network string) (*x402.SettlementResult, error) {
	req := FacilitatorSettleRequest{
		From:       payload.From,
		To:         payload.To,
		Amount:     payload.Amount,
		Nonce:      payload.Nonce,
		ValidUntil: payload.ValidUntil,
		Asset:      payload.Asset,
		Signature:  signature,
		Network:    network,
	}

	body, err := json.Marshal(&req)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeSettlementUnavailable, "failed to marshal settle request", err)
	}

	requestID := uuid.NewString()
	log := c.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"network":    network,
		"payer":      payload.From,
		"nonce":      payload.Nonce,
	})
	log.Debug("submitting payment for settlement")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeSettlementUnavailable, "failed to create settle request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", requestID)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Errorf("settlement request failed: %v", err)
		return nil, x402.NewPaymentError(x402.ErrCodeSettlementUnavailable, "settlement delegate unreachable", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeSettlementUnavailable, "failed to read settle response", err)
	}

	if httpResp.StatusCode >= http.StatusInternalServerError {
		log.Warnf("settlement delegate error: HTTP %d", httpResp.StatusCode)
		return nil, x402.NewPaymentError(x402.ErrCodeSettlementUnavailable,
			fmt.Sprintf("settlement delegate returned HTTP %d", httpResp.StatusCode), nil)
	}

	var resp FacilitatorSettleResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeSettlementUnavailable, "failed to parse settle response", err)
	}

	if !resp.OK {
		reason := resp.Error
		if reason == "" {
			reason = fmt.Sprintf("HTTP %d", httpResp.StatusCode)
		}
		log.Warnf("settlement rejected: %s", reason)
		return nil, x402.NewPaymentError(x402.ErrCodeSettlementRejected,
			fmt.Sprintf("settlement rejected: %s", reason), nil)
	}

	log.WithFields(logrus.Fields{
		"block":     resp.BlockNumber,
		"extrinsic": resp.ExtrinsicHash,
		"confirmed": resp.Confirmed,
	}).Info("payment settled")

	return &x402.SettlementResult{
		Confirmed:     resp.Confirmed,
		BlockNumber:   resp.BlockNumber,
		BlockHash:     resp.BlockHash,
		ExtrinsicHash: resp.ExtrinsicHash,
	}, nil
}
