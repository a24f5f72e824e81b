package substrate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/httpusd/x402-go"
)

func settlePayload() *x402.PaymentPayload {
	return &x402.PaymentPayload{
		From:       aliceAddress,
		To:         "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty",
		Amount:     "1000",
		Nonce:      "6c2cb5e6e173e425a33735ff223b9b0e",
		ValidUntil: 1_700_000_000_000,
		Asset:      "httpusd",
	}
}

func TestFacilitatorSettle_Confirmed(t *testing.T) {
	var received FacilitatorSettleRequest
	var requestID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		requestID = r.Header.Get("X-Request-Id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		json.NewEncoder(w).Encode(&FacilitatorSettleResponse{
			OK:            true,
			Confirmed:     true,
			BlockNumber:   1234,
			BlockHash:     "0xblock",
			ExtrinsicHash: "0xextrinsic",
		})
	}))
	defer server.Close()

	client := NewFacilitatorClient(server.URL)
	payload := settlePayload()

	result, err := client.Settle(context.Background(), payload, "ab12cd34", "polkadot:westend")
	require.NoError(t, err)

	assert.True(t, result.Confirmed)
	assert.Equal(t, uint64(1234), result.BlockNumber)
	assert.Equal(t, "0xblock", result.BlockHash)
	assert.Equal(t, "0xextrinsic", result.ExtrinsicHash)

	// The full authorization travels to the delegate.
	assert.Equal(t, payload.From, received.From)
	assert.Equal(t, payload.To, received.To)
	assert.Equal(t, payload.Amount, received.Amount)
	assert.Equal(t, payload.Nonce, received.Nonce)
	assert.Equal(t, payload.ValidUntil, received.ValidUntil)
	assert.Equal(t, payload.Asset, received.Asset)
	assert.Equal(t, "ab12cd34", received.Signature)
	assert.Equal(t, "polkadot:westend", received.Network)

	assert.NotEmpty(t, requestID)
}

func TestFacilitatorSettle_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&FacilitatorSettleResponse{
			OK:    false,
			Error: "nonce already used",
		})
	}))
	defer server.Close()

	client := NewFacilitatorClient(server.URL)
	_, err := client.Settle(context.Background(), settlePayload(), "ab", "polkadot:westend")

	require.Error(t, err)
	assert.Equal(t, x402.ErrCodeSettlementRejected, x402.GetPaymentErrorCode(err))
	assert.Contains(t, err.Error(), "nonce already used")
}

func TestFacilitatorSettle_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewFacilitatorClient(server.URL)
	_, err := client.Settle(context.Background(), settlePayload(), "ab", "polkadot:westend")

	require.Error(t, err)
	assert.Equal(t, x402.ErrCodeSettlementUnavailable, x402.GetPaymentErrorCode(err))
}

func TestFacilitatorSettle_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewFacilitatorClient(server.URL)
	_, err := client.Settle(context.Background(), settlePayload(), "ab", "polkadot:westend")

	require.Error(t, err)
	assert.Equal(t, x402.ErrCodeSettlementUnavailable, x402.GetPaymentErrorCode(err))
}

func TestFacilitatorSettle_GarbageResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	client := NewFacilitatorClient(server.URL)
	_, err := client.Settle(context.Background(), settlePayload(), "ab", "polkadot:westend")

	require.Error(t, err)
	assert.Equal(t, x402.ErrCodeSettlementUnavailable, x402.GetPaymentErrorCode(err))
}

func TestFacilitatorSettle_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewFacilitatorClient(server.URL)
	_, err := client.Settle(ctx, settlePayload(), "ab", "polkadot:westend")

	require.Error(t, err)
	assert.Equal(t, x402.ErrCodeSettlementUnavailable, x402.GetPaymentErrorCode(err))
}
