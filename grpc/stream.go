package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	x402 "github.com/httpusd/x402-go"
)

// StreamServerInterceptor creates a gRPC stream server interceptor enforcing
// x402 payments. Payment is validated before the stream begins; per-message
// payment is not supported.
func StreamServerInterceptor(cfg x402.Config) grpc.StreamServerInterceptor {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid x402 config: %v", err))
	}

	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := ss.Context()

		rule, requiresPayment := cfg.MatchMethod(info.FullMethod)
		if !requiresPayment {
			return handler(srv, ss)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		headerValue, ok := ExtractPaymentFromMetadata(md)
		if !ok {
			return paymentRequiredStatus(rule, info.FullMethod, &cfg)
		}

		paymentCtx, perr := x402.ValidatePayment(ctx, &cfg, rule, headerValue, requestInfoFromMD(info.FullMethod, md))
		if perr != nil {
			return statusFromPaymentError(perr, rule, info.FullMethod, &cfg)
		}

		wrappedStream := &paymentServerStream{
			ServerStream: ss,
			ctx:          context.WithValue(ctx, x402.PaymentContextKey, paymentCtx),
		}

		err := handler(srv, wrappedStream)

		if err == nil {
			if encoded, encErr := encodeSettlementTrailer(paymentCtx); encErr == nil {
				wrappedStream.SetTrailer(metadata.Pairs(MetadataKeyPaymentResponse, encoded))
			}
		}

		return err
	}
}

// paymentServerStream wraps grpc.ServerStream to expose the context carrying
// the payment information.
type paymentServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *paymentServerStream) Context() context.Context {
	return s.ctx
}
