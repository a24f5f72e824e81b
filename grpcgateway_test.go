package x402

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"
)

func TestGetPaymentFromGRPCContext(t *testing.T) {
	md := metadata.Pairs(
		"x-payment-verified", "true",
		"x-payment-payer", testPayer,
		"x-payment-amount", "1000",
		"x-payment-network", testNetwork,
		"x-payment-confirmed", "true",
		"x-payment-extrinsic", "0xextrinsic",
		"x-payment-block", "0xblock",
	)
	ctx := metadata.NewIncomingContext(context.Background(), md)

	payment, ok := GetPaymentFromGRPCContext(ctx)
	require.True(t, ok)
	assert.True(t, payment.Verified)
	assert.Equal(t, testPayer, payment.Payer)
	assert.Equal(t, "1000", payment.Amount)
	assert.Equal(t, testNetwork, payment.Network)
	assert.True(t, payment.ConfirmedOnChain)
	require.NotNil(t, payment.Settlement)
	assert.Equal(t, "0xextrinsic", payment.Settlement.ExtrinsicHash)
	assert.Equal(t, "0xblock", payment.Settlement.BlockHash)
}

func TestGetPaymentFromGRPCContext_Missing(t *testing.T) {
	_, ok := GetPaymentFromGRPCContext(context.Background())
	assert.False(t, ok)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.MD{})
	_, ok = GetPaymentFromGRPCContext(ctx)
	assert.False(t, ok)
}
