package x402

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// PaymentMiddleware creates HTTP middleware that gates matched endpoints
// behind the x402 payment pipeline. Requests without a payment header get a
// 402 carrying the offer; requests with one run the full validation pipeline
// and, on success, reach the protected handler with a PaymentContext in the
// request context.
func PaymentMiddleware(cfg Config) func(http.Handler) http.Handler {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid x402 middleware configuration: %v", err))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			rule, requiresPayment := cfg.MatchEndpoint(r.URL.Path)
			if !requiresPayment {
				next.ServeHTTP(w, r)
				return
			}

			headerValue := r.Header.Get(PaymentHeaderName)
			if headerValue == "" {
				sendPaymentRequired(w, r, rule, &cfg, "Payment required")
				return
			}

			info := RequestInfoFromHTTP(r)
			paymentCtx, perr := ValidatePayment(ctx, &cfg, rule, headerValue, info)
			if perr != nil {
				cfg.Logger.WithField("path", r.URL.Path).
					Debugf("payment rejected: %v", perr)
				if perr.Code == ErrCodeSettlementRejected {
					// Re-issue the offer so the client can pay again.
					sendPaymentRequired(w, r, rule, &cfg, perr.Message)
					return
				}
				sendError(w, perr.HTTPStatus(), perr.Error())
				return
			}

			ctx = context.WithValue(ctx, PaymentContextKey, paymentCtx)

			response := PaymentResponse{
				Success: true,
				Network: paymentCtx.Network,
				Payer:   paymentCtx.Payer,
			}
			if paymentCtx.Settlement != nil {
				response.Transaction = paymentCtx.Settlement.ExtrinsicHash
			}
			if encoded, err := EncodePaymentResponse(&response); err == nil {
				w.Header().Set(PaymentResponseHeaderName, encoded)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sendPaymentRequired sends a 402 Payment Required response carrying the
// offer in both the body and the Payment-Required header.
func sendPaymentRequired(w http.ResponseWriter, r *http.Request, rule *PricingRule, cfg *Config, errMsg string) {
	if cfg.CustomPaywallHTML != "" && isBrowserRequest(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(cfg.CustomPaywallHTML))
		return
	}

	response := PaymentRequiredResponse{
		X402Version: cfg.X402Version,
		Accepts:     cfg.BuildRequirements(rule, r.URL.Path, RequestInfoFromHTTP(r)),
		Error:       errMsg,
	}

	if responseJSON, err := json.Marshal(response); err == nil {
		w.Header().Set(PaymentRequiredHeaderName, base64.StdEncoding.EncodeToString(responseJSON))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	json.NewEncoder(w).Encode(response)
}

func sendError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

func isBrowserRequest(r *http.Request) bool {
	userAgent := r.Header.Get("User-Agent")
	if userAgent == "" {
		return false
	}

	browserIndicators := []string{"Mozilla/", "Chrome/", "Safari/", "Firefox/", "Edge/", "Opera/"}
	for _, indicator := range browserIndicators {
		if strings.Contains(userAgent, indicator) {
			return true
		}
	}

	return false
}
