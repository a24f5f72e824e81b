package x402

import (
	"encoding/base64"
	"encoding/json"
)

// EncodePaymentHeader serializes a PaymentHeader into the single ASCII-safe
// string carried in the X-Payment header: JSON, then standard base64.
func EncodePaymentHeader(header *PaymentHeader) (string, error) {
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", NewPaymentError(ErrCodeMalformedHeader, "failed to marshal payment header", err)
	}
	return base64.StdEncoding.EncodeToString(headerJSON), nil
}

// DecodePaymentHeader is the exact inverse of EncodePaymentHeader. Every
// failure mode (bad base64, bad JSON, missing required fields) is reported
// as ErrCodeMalformedHeader so the server can answer 400 rather than 500.
func DecodePaymentHeader(encoded string) (*PaymentHeader, error) {
	headerBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, NewPaymentError(ErrCodeMalformedHeader, "failed to decode base64", err)
	}

	var header PaymentHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, NewPaymentError(ErrCodeMalformedHeader, "failed to parse JSON", err)
	}

	if header.X402Version == 0 {
		return nil, NewPaymentError(ErrCodeMalformedHeader, "x402Version is required", nil)
	}
	if header.Scheme == "" {
		return nil, NewPaymentError(ErrCodeMalformedHeader, "scheme is required", nil)
	}
	if header.Network == "" {
		return nil, NewPaymentError(ErrCodeMalformedHeader, "network is required", nil)
	}
	if header.Payload.Payload == "" || header.Payload.Signature == "" || header.Payload.Signer == "" {
		return nil, NewPaymentError(ErrCodeMalformedHeader, "payload, signature and signer are required", nil)
	}

	return &header, nil
}

// DecodePaymentResponse decodes an X-Payment-Response header.
func DecodePaymentResponse(encoded string) (*PaymentResponse, error) {
	responseBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, NewPaymentError(ErrCodeMalformedHeader, "failed to decode base64", err)
	}

	var response PaymentResponse
	if err := json.Unmarshal(responseBytes, &response); err != nil {
		return nil, NewPaymentError(ErrCodeMalformedHeader, "failed to parse JSON", err)
	}

	return &response, nil
}

// EncodePaymentResponse encodes a PaymentResponse for the X-Payment-Response
// header.
func EncodePaymentResponse(response *PaymentResponse) (string, error) {
	responseJSON, err := json.Marshal(response)
	if err != nil {
		return "", NewPaymentError(ErrCodeMalformedHeader, "failed to marshal payment response", err)
	}
	return base64.StdEncoding.EncodeToString(responseJSON), nil
}
