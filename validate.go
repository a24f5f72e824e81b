package x402

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ValidatePayment runs the ordered validation pipeline over a raw X-Payment
// header value. The checks short-circuit in a fixed order: decode, network,
// asset, signature, expiry, recipient, amount, validity window, custom
// policy, settlement. Header presence is the caller's concern (a missing
// header means "issue the offer", not an error).
//
// On success the returned PaymentContext describes the admitted payment; on
// failure the returned *PaymentError names the failed check and maps to an
// HTTP status via HTTPStatus.
func ValidatePayment(ctx context.Context, cfg *Config, rule *PricingRule, headerValue string, info RequestInfo) (*PaymentContext, *PaymentError) {
	header, err := DecodePaymentHeader(headerValue)
	if err != nil {
		return nil, asPaymentError(err, ErrCodeMalformedHeader)
	}

	if header.Network != cfg.Network {
		return nil, NewPaymentError(ErrCodeNetworkMismatch,
			fmt.Sprintf("payment network %q does not match %q", header.Network, cfg.Network), nil)
	}

	if cfg.Asset != "" && header.Asset != cfg.Asset {
		return nil, NewPaymentError(ErrCodeAssetMismatch,
			fmt.Sprintf("payment asset %q does not match %q", header.Asset, cfg.Asset), nil)
	}

	if !cfg.Verifier.VerifyPayment(&header.Payload) {
		return nil, NewPaymentError(ErrCodeInvalidSignature, "payment signature verification failed", nil)
	}

	var payload PaymentPayload
	if err := json.Unmarshal([]byte(header.Payload.Payload), &payload); err != nil {
		return nil, NewPaymentError(ErrCodeMalformedHeader, "failed to parse payment payload", err)
	}

	nowMs := uint64(time.Now().UnixMilli())
	if nowMs >= payload.ValidUntil {
		return nil, NewPaymentError(ErrCodeExpiredPayment,
			fmt.Sprintf("payment expired at %d", payload.ValidUntil), nil)
	}

	if payload.To != cfg.PayTo {
		return nil, NewPaymentError(ErrCodeRecipientMismatch,
			fmt.Sprintf("payment recipient %q does not match %q", payload.To, cfg.PayTo), nil)
	}

	if !cfg.AllowTestPayments {
		if perr := checkAmount(payload.Amount, rule.Price(info)); perr != nil {
			return nil, perr
		}
	}

	// Bound how far ahead the expiry may lie; a window pushed arbitrarily
	// far into the future would keep the authorization replayable for that
	// whole span if the ledger ever lost its nonce state.
	if cfg.MaxValidityWindow > 0 && payload.ValidUntil > nowMs {
		ahead := time.Duration(payload.ValidUntil-nowMs) * time.Millisecond
		if ahead > cfg.MaxValidityWindow {
			return nil, NewPaymentError(ErrCodeExpiredPayment,
				fmt.Sprintf("payment validity window %s exceeds maximum %s", ahead, cfg.MaxValidityWindow), nil)
		}
	}

	if cfg.CustomCheck != nil {
		if err := cfg.CustomCheck(&payload, info); err != nil {
			return nil, NewPaymentError(ErrCodeCustomValidationFailed, "custom validation failed", err)
		}
	}

	pc := &PaymentContext{
		Verified: true,
		Payer:    payload.From,
		Amount:   payload.Amount,
		Network:  header.Network,
	}

	if cfg.Settler != nil {
		result, err := cfg.Settler.Settle(ctx, &payload, header.Payload.Signature, header.Network)
		switch {
		case err == nil:
			pc.ConfirmedOnChain = result.Confirmed
			pc.Settlement = result
		case cfg.SettlementOptional:
			cfg.Logger.WithField("payer", payload.From).
				Warnf("settlement skipped: %v", err)
		case GetPaymentErrorCode(err) == ErrCodeSettlementRejected:
			return nil, asPaymentError(err, ErrCodeSettlementRejected)
		default:
			return nil, asPaymentError(err, ErrCodeSettlementUnavailable)
		}
	}

	return pc, nil
}

// checkAmount verifies the authorized amount covers the required price.
// A zero authorization is never sufficient; the smallest admissible payment
// is one atomic unit.
func checkAmount(authorized, required string) *PaymentError {
	amount, err := ParseAmount(authorized)
	if err != nil {
		return NewPaymentError(ErrCodeInsufficientAmount, "invalid payment amount", err)
	}
	price, err := ParseAmount(required)
	if err != nil {
		return NewPaymentError(ErrCodeInsufficientAmount, "invalid required price", err)
	}
	if amount.Sign() == 0 {
		return NewPaymentError(ErrCodeInsufficientAmount, "payment amount is zero", nil)
	}
	if amount.Cmp(price) < 0 {
		return NewPaymentError(ErrCodeInsufficientAmount,
			fmt.Sprintf("payment amount %s is below required %s", authorized, required), nil)
	}
	return nil
}

func asPaymentError(err error, fallbackCode string) *PaymentError {
	if pe, ok := err.(*PaymentError); ok {
		return pe
	}
	return NewPaymentError(fallbackCode, err.Error(), err)
}
