package grpc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"google.golang.org/grpc/metadata"

	x402 "github.com/httpusd/x402-go"
)

const (
	// MetadataKeyPaymentRequirements is the metadata key for payment requirements.
	MetadataKeyPaymentRequirements = "x402-payment-requirements"

	// MetadataKeyPayment is the metadata key for the payment header value.
	MetadataKeyPayment = "x402-payment"

	// MetadataKeyPaymentResponse is the metadata key for the settlement response.
	MetadataKeyPaymentResponse = "x402-payment-response"
)

// EncodePaymentRequirements encodes a payment-required document to base64
// JSON for inclusion in gRPC metadata or status messages.
func EncodePaymentRequirements(version int, requirements []x402.PaymentRequirements, errMsg string) (string, error) {
	response := x402.PaymentRequiredResponse{
		X402Version: version,
		Accepts:     requirements,
		Error:       errMsg,
	}

	jsonBytes, err := json.Marshal(response)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment requirements: %w", err)
	}

	return base64.StdEncoding.EncodeToString(jsonBytes), nil
}

// DecodePaymentRequirements decodes base64 JSON payment requirements.
func DecodePaymentRequirements(encoded string) (*x402.PaymentRequiredResponse, error) {
	jsonBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	var response x402.PaymentRequiredResponse
	if err := json.Unmarshal(jsonBytes, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment requirements: %w", err)
	}

	return &response, nil
}

// ExtractPaymentFromMetadata pulls the raw payment header value out of
// incoming metadata. The value is the same base64 document the X-Payment
// HTTP header carries.
func ExtractPaymentFromMetadata(md metadata.MD) (string, bool) {
	values := md.Get(MetadataKeyPayment)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// ExtractPaymentRequirementsFromMetadata extracts and decodes payment
// requirements from metadata, for clients inspecting a payment-required
// failure.
func ExtractPaymentRequirementsFromMetadata(md metadata.MD) (*x402.PaymentRequiredResponse, error) {
	values := md.Get(MetadataKeyPaymentRequirements)
	if len(values) == 0 {
		return nil, fmt.Errorf("no payment requirements found in metadata")
	}

	return DecodePaymentRequirements(values[0])
}

// requestInfoFromMD builds the pipeline's request view from a gRPC call.
func requestInfoFromMD(fullMethod string, md metadata.MD) x402.RequestInfo {
	return x402.RequestInfo{
		Method: "POST",
		Path:   fullMethod,
		Header: http.Header(md),
	}
}
