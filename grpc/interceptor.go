package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	x402 "github.com/httpusd/x402-go"
)

// UnaryServerInterceptor creates a gRPC unary server interceptor enforcing
// x402 payments over metadata. It runs the same validation pipeline as the
// HTTP middleware; only the transport and the status mapping differ.
func UnaryServerInterceptor(cfg x402.Config) grpc.UnaryServerInterceptor {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid x402 config: %v", err))
	}

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		rule, requiresPayment := cfg.MatchMethod(info.FullMethod)
		if !requiresPayment {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		headerValue, ok := ExtractPaymentFromMetadata(md)
		if !ok {
			return nil, paymentRequiredStatus(rule, info.FullMethod, &cfg)
		}

		paymentCtx, perr := x402.ValidatePayment(ctx, &cfg, rule, headerValue, requestInfoFromMD(info.FullMethod, md))
		if perr != nil {
			return nil, statusFromPaymentError(perr, rule, info.FullMethod, &cfg)
		}

		ctx = context.WithValue(ctx, x402.PaymentContextKey, paymentCtx)

		resp, err := handler(ctx, req)
		if err != nil {
			return nil, err
		}

		if encoded, encErr := encodeSettlementTrailer(paymentCtx); encErr == nil {
			grpc.SetTrailer(ctx, metadata.Pairs(MetadataKeyPaymentResponse, encoded))
		}

		return resp, nil
	}
}

// paymentRequiredStatus signals payment-required through a ResourceExhausted
// status whose message is the base64 payment-required document, following
// Google Cloud's precedent of using that code for quota/billing enforcement.
func paymentRequiredStatus(rule *x402.PricingRule, fullMethod string, cfg *x402.Config) error {
	requirements := cfg.BuildRequirements(rule, fullMethod, x402.RequestInfo{Method: "POST", Path: fullMethod})

	encoded, err := EncodePaymentRequirements(cfg.X402Version, requirements, "payment required")
	if err != nil {
		return status.Error(codes.Internal, fmt.Sprintf("failed to encode payment requirements: %v", err))
	}

	return status.Error(codes.ResourceExhausted, encoded)
}

// statusFromPaymentError maps pipeline failures onto gRPC codes the way the
// HTTP middleware maps them onto statuses.
func statusFromPaymentError(perr *x402.PaymentError, rule *x402.PricingRule, fullMethod string, cfg *x402.Config) error {
	switch perr.Code {
	case x402.ErrCodeInvalidSignature, x402.ErrCodeCustomValidationFailed:
		return status.Error(codes.PermissionDenied, perr.Error())
	case x402.ErrCodeSettlementRejected:
		// Payment has to be made again: re-issue the offer.
		return paymentRequiredStatus(rule, fullMethod, cfg)
	case x402.ErrCodeSettlementUnavailable:
		return status.Error(codes.Unavailable, perr.Error())
	default:
		return status.Error(codes.InvalidArgument, perr.Error())
	}
}

func encodeSettlementTrailer(paymentCtx *x402.PaymentContext) (string, error) {
	response := x402.PaymentResponse{
		Success: true,
		Network: paymentCtx.Network,
		Payer:   paymentCtx.Payer,
	}
	if paymentCtx.Settlement != nil {
		response.Transaction = paymentCtx.Settlement.ExtrinsicHash
	}
	return x402.EncodePaymentResponse(&response)
}

// GetPaymentFromContext extracts payment information from the gRPC context.
func GetPaymentFromContext(ctx context.Context) (*x402.PaymentContext, bool) {
	payment, ok := ctx.Value(x402.PaymentContextKey).(*x402.PaymentContext)
	return payment, ok
}

// RequirePayment extracts payment from context and errors if it is missing.
func RequirePayment(ctx context.Context) (*x402.PaymentContext, error) {
	payment, ok := GetPaymentFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.ResourceExhausted, "payment context not found")
	}
	if !payment.Verified {
		return nil, status.Error(codes.ResourceExhausted, "payment not verified")
	}
	return payment, nil
}
