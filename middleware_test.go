package x402

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockVerifier is a mock PayloadVerifier; the default accepts everything.
type mockVerifier struct {
	VerifyFunc func(signed *SignedPayment) bool
}

func (m *mockVerifier) VerifyPayment(signed *SignedPayment) bool {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(signed)
	}
	return true
}

// mockSettler is a mock Settler driven by a function field.
type mockSettler struct {
	SettleFunc func(ctx context.Context, payload *PaymentPayload, signature, network string) (*SettlementResult, error)
	calls      int
}

func (m *mockSettler) Settle(ctx context.Context, payload *PaymentPayload, signature, network string) (*SettlementResult, error) {
	m.calls++
	if m.SettleFunc != nil {
		return m.SettleFunc(ctx, payload, signature, network)
	}
	return &SettlementResult{Confirmed: true, BlockNumber: 42, ExtrinsicHash: "0xdeadbeef"}, nil
}

const (
	testNetwork   = "polkadot:westend"
	testRecipient = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
	testPayer     = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
)

func testConfig() Config {
	return Config{
		Verifier: &mockVerifier{},
		Network:  testNetwork,
		PayTo:    testRecipient,
		EndpointPricing: map[string]PricingRule{
			"/v1/paid": {
				Amount:      "1000",
				Description: "Paid endpoint",
			},
		},
		SkipPaths: []string{"/health"},
	}
}

// makePaymentHeader builds an encoded X-Payment header for tests; mutate
// tweaks the payload and reshape tweaks the header before encoding.
func makePaymentHeader(t *testing.T, mutate func(*PaymentPayload), reshape func(*PaymentHeader)) string {
	t.Helper()

	payload := PaymentPayload{
		From:       testPayer,
		To:         testRecipient,
		Amount:     "1000",
		Nonce:      "6c2cb5e6e173e425a33735ff223b9b0e",
		ValidUntil: uint64(time.Now().Add(5 * time.Minute).UnixMilli()),
	}
	if mutate != nil {
		mutate(&payload)
	}

	raw, err := json.Marshal(&payload)
	require.NoError(t, err)

	header := PaymentHeader{
		X402Version: 1,
		Scheme:      SchemeExact,
		Network:     testNetwork,
		Payload: SignedPayment{
			Payload:   string(raw),
			Signature: "ab12cd34",
			Signer:    payload.From,
		},
	}
	if reshape != nil {
		reshape(&header)
	}

	encoded, err := EncodePaymentHeader(&header)
	require.NoError(t, err)
	return encoded
}

func runMiddleware(t *testing.T, cfg Config, headerValue string) (*httptest.ResponseRecorder, *PaymentContext) {
	t.Helper()

	var captured *PaymentContext
	handler := PaymentMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = GetPaymentFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/paid", nil)
	if headerValue != "" {
		req.Header.Set(PaymentHeaderName, headerValue)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, captured
}

func TestPaymentMiddleware_NoPaymentRequired(t *testing.T) {
	handler := PaymentMiddleware(testConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentMiddleware_MissingHeaderIssuesOffer(t *testing.T) {
	rec, _ := runMiddleware(t, testConfig(), "")

	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	var body PaymentRequiredResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Accepts, 1)

	offer := body.Accepts[0]
	assert.Equal(t, SchemeExact, offer.Scheme)
	assert.Equal(t, testNetwork, offer.Network)
	assert.Equal(t, testRecipient, offer.PayTo)
	assert.Equal(t, "1000", offer.MaxAmountRequired)
	assert.Equal(t, "/v1/paid", offer.Resource)
	assert.Equal(t, 1, body.X402Version)

	// The offer is mirrored in the Payment-Required header.
	mirrored := rec.Header().Get(PaymentRequiredHeaderName)
	require.NotEmpty(t, mirrored)
}

func TestPaymentMiddleware_ValidPayment(t *testing.T) {
	rec, payment := runMiddleware(t, testConfig(), makePaymentHeader(t, nil, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, payment)
	assert.True(t, payment.Verified)
	assert.Equal(t, testPayer, payment.Payer)
	assert.Equal(t, "1000", payment.Amount)
	assert.False(t, payment.ConfirmedOnChain)

	receipt := rec.Header().Get(PaymentResponseHeaderName)
	require.NotEmpty(t, receipt)
	response, err := DecodePaymentResponse(receipt)
	require.NoError(t, err)
	assert.True(t, response.Success)
	assert.Equal(t, testPayer, response.Payer)
}

func TestPaymentMiddleware_MalformedHeader(t *testing.T) {
	rec, _ := runMiddleware(t, testConfig(), "not-base64!!")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentMiddleware_NetworkMismatch(t *testing.T) {
	header := makePaymentHeader(t, nil, func(h *PaymentHeader) {
		h.Network = "polkadot:kusama"
	})
	rec, _ := runMiddleware(t, testConfig(), header)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentMiddleware_AssetMismatch(t *testing.T) {
	cfg := testConfig()
	cfg.Asset = "httpusd"

	header := makePaymentHeader(t, nil, func(h *PaymentHeader) {
		h.Asset = "other"
	})
	rec, _ := runMiddleware(t, cfg, header)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentMiddleware_InvalidSignature(t *testing.T) {
	cfg := testConfig()
	cfg.Verifier = &mockVerifier{VerifyFunc: func(*SignedPayment) bool { return false }}

	rec, _ := runMiddleware(t, cfg, makePaymentHeader(t, nil, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPaymentMiddleware_ExpiredPayment(t *testing.T) {
	header := makePaymentHeader(t, func(p *PaymentPayload) {
		p.ValidUntil = uint64(time.Now().Add(-time.Minute).UnixMilli())
	}, nil)
	rec, _ := runMiddleware(t, testConfig(), header)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentMiddleware_ExpiryBoundary(t *testing.T) {
	// validUntil == now counts as expired.
	header := makePaymentHeader(t, func(p *PaymentPayload) {
		p.ValidUntil = uint64(time.Now().UnixMilli())
	}, nil)
	rec, _ := runMiddleware(t, testConfig(), header)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentMiddleware_RecipientMismatch(t *testing.T) {
	header := makePaymentHeader(t, func(p *PaymentPayload) {
		p.To = testPayer
	}, nil)
	rec, _ := runMiddleware(t, testConfig(), header)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentMiddleware_AmountBoundary(t *testing.T) {
	// Exactly the required price passes.
	rec, _ := runMiddleware(t, testConfig(), makePaymentHeader(t, func(p *PaymentPayload) {
		p.Amount = "1000"
	}, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// One unit short fails.
	rec, _ = runMiddleware(t, testConfig(), makePaymentHeader(t, func(p *PaymentPayload) {
		p.Amount = "999"
	}, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentMiddleware_TestPaymentBypass(t *testing.T) {
	cfg := testConfig()
	cfg.AllowTestPayments = true

	rec, _ := runMiddleware(t, cfg, makePaymentHeader(t, func(p *PaymentPayload) {
		p.Amount = "1"
	}, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentMiddleware_ValidityWindowTooLong(t *testing.T) {
	cfg := testConfig()
	cfg.MaxValidityWindow = time.Minute

	header := makePaymentHeader(t, func(p *PaymentPayload) {
		p.ValidUntil = uint64(time.Now().Add(time.Hour).UnixMilli())
	}, nil)
	rec, _ := runMiddleware(t, cfg, header)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentMiddleware_DynamicPrice(t *testing.T) {
	cfg := testConfig()
	cfg.EndpointPricing = map[string]PricingRule{
		"/v1/paid": {
			PriceFunc: func(info RequestInfo) string {
				if info.Query.Get("tier") == "premium" {
					return "5000"
				}
				return "1000"
			},
		},
	}

	handler := PaymentMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/paid?tier=premium", nil)
	req.Header.Set(PaymentHeaderName, makePaymentHeader(t, nil, nil))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// The 1000-unit payment no longer covers the premium price.
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentMiddleware_CustomCheck(t *testing.T) {
	cfg := testConfig()
	cfg.CustomCheck = func(payload *PaymentPayload, info RequestInfo) error {
		return assert.AnError
	}

	rec, _ := runMiddleware(t, cfg, makePaymentHeader(t, nil, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPaymentMiddleware_NoSettlerConfigured(t *testing.T) {
	// Without a delegate the pipeline admits on signature, amount and
	// expiry alone; the delegate step is skipped, not failed.
	rec, payment := runMiddleware(t, testConfig(), makePaymentHeader(t, nil, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, payment)
	assert.False(t, payment.ConfirmedOnChain)
	assert.Nil(t, payment.Settlement)
}

func TestPaymentMiddleware_SettlementConfirmed(t *testing.T) {
	cfg := testConfig()
	settler := &mockSettler{}
	cfg.Settler = settler

	rec, payment := runMiddleware(t, cfg, makePaymentHeader(t, nil, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, payment)
	assert.Equal(t, 1, settler.calls)
	assert.True(t, payment.ConfirmedOnChain)
	require.NotNil(t, payment.Settlement)
	assert.Equal(t, uint64(42), payment.Settlement.BlockNumber)

	receipt := rec.Header().Get(PaymentResponseHeaderName)
	response, err := DecodePaymentResponse(receipt)
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", response.Transaction)
}

func TestPaymentMiddleware_SettlementRejected(t *testing.T) {
	cfg := testConfig()
	cfg.Settler = &mockSettler{
		SettleFunc: func(context.Context, *PaymentPayload, string, string) (*SettlementResult, error) {
			return nil, NewPaymentError(ErrCodeSettlementRejected, "nonce already used", nil)
		},
	}

	rec, _ := runMiddleware(t, cfg, makePaymentHeader(t, nil, nil))

	// A rejected settlement re-issues the offer with 402.
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	var body PaymentRequiredResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Accepts)
}

func TestPaymentMiddleware_SettlementUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.Settler = &mockSettler{
		SettleFunc: func(context.Context, *PaymentPayload, string, string) (*SettlementResult, error) {
			return nil, NewPaymentError(ErrCodeSettlementUnavailable, "delegate unreachable", nil)
		},
	}

	rec, _ := runMiddleware(t, cfg, makePaymentHeader(t, nil, nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestPaymentMiddleware_SettlementOptional(t *testing.T) {
	cfg := testConfig()
	cfg.SettlementOptional = true
	cfg.Settler = &mockSettler{
		SettleFunc: func(context.Context, *PaymentPayload, string, string) (*SettlementResult, error) {
			return nil, NewPaymentError(ErrCodeSettlementUnavailable, "delegate unreachable", nil)
		},
	}

	rec, payment := runMiddleware(t, cfg, makePaymentHeader(t, nil, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, payment)
	assert.True(t, payment.Verified)
	assert.False(t, payment.ConfirmedOnChain)
	assert.Nil(t, payment.Settlement)
}

func TestPaymentMiddleware_BrowserPaywall(t *testing.T) {
	cfg := testConfig()
	cfg.CustomPaywallHTML = "<html>pay up</html>"

	handler := PaymentMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/paid", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "pay up")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestPaymentMiddleware_InvalidConfigPanics(t *testing.T) {
	assert.Panics(t, func() {
		PaymentMiddleware(Config{})
	})
}

func TestValidatePayment_VerifyIdempotent(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	rule := cfg.EndpointPricing["/v1/paid"]
	header := makePaymentHeader(t, nil, nil)
	info := RequestInfo{Method: http.MethodGet, Path: "/v1/paid"}

	first, perr := ValidatePayment(context.Background(), &cfg, &rule, header, info)
	require.Nil(t, perr)
	second, perr := ValidatePayment(context.Background(), &cfg, &rule, header, info)
	require.Nil(t, perr)
	assert.Equal(t, first.Payer, second.Payer)
	assert.Equal(t, first.Amount, second.Amount)
}
