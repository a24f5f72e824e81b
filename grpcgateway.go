package x402

import (
	"context"
	"net/http"
	"strconv"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/metadata"
)

// WithPaymentMetadata returns a ServeMuxOption that propagates the payment
// context from the HTTP middleware into gRPC metadata, making it accessible
// in gRPC handlers behind a grpc-gateway.
func WithPaymentMetadata() runtime.ServeMuxOption {
	return runtime.WithMetadata(func(ctx context.Context, r *http.Request) metadata.MD {
		md := metadata.MD{}

		payment, ok := GetPaymentFromContext(ctx)
		if !ok || payment == nil || !payment.Verified {
			return md
		}

		md.Set("x-payment-verified", "true")
		md.Set("x-payment-payer", payment.Payer)
		md.Set("x-payment-amount", payment.Amount)
		md.Set("x-payment-network", payment.Network)
		md.Set("x-payment-confirmed", strconv.FormatBool(payment.ConfirmedOnChain))

		if payment.Settlement != nil {
			if payment.Settlement.ExtrinsicHash != "" {
				md.Set("x-payment-extrinsic", payment.Settlement.ExtrinsicHash)
			}
			if payment.Settlement.BlockHash != "" {
				md.Set("x-payment-block", payment.Settlement.BlockHash)
			}
		}

		return md
	})
}

// GetPaymentFromGRPCContext extracts payment information from gRPC metadata
// set by WithPaymentMetadata. Use this in gRPC handlers behind the gateway.
func GetPaymentFromGRPCContext(ctx context.Context) (*PaymentContext, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, false
	}

	verified := md.Get("x-payment-verified")
	if len(verified) == 0 || verified[0] != "true" {
		return nil, false
	}

	payment := &PaymentContext{Verified: true}

	if v := md.Get("x-payment-payer"); len(v) > 0 {
		payment.Payer = v[0]
	}
	if v := md.Get("x-payment-amount"); len(v) > 0 {
		payment.Amount = v[0]
	}
	if v := md.Get("x-payment-network"); len(v) > 0 {
		payment.Network = v[0]
	}
	if v := md.Get("x-payment-confirmed"); len(v) > 0 {
		payment.ConfirmedOnChain = v[0] == "true"
	}
	if v := md.Get("x-payment-extrinsic"); len(v) > 0 {
		payment.Settlement = &SettlementResult{
			Confirmed:     payment.ConfirmedOnChain,
			ExtrinsicHash: v[0],
		}
		if b := md.Get("x-payment-block"); len(b) > 0 {
			payment.Settlement.BlockHash = b[0]
		}
	}

	return payment, true
}
