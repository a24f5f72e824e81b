package x402

import (
	"fmt"
	"math/big"
	"os"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds the server-side validation configuration shared by the HTTP
// middleware and the gRPC interceptors.
type Config struct {
	// Verifier checks payment signatures (e.g., substrate.PayloadVerifier).
	Verifier PayloadVerifier

	// Settler is the settlement delegate client (optional). When nil the
	// pipeline admits requests on signature, amount and expiry alone.
	Settler Settler

	// SettlementOptional makes on-chain confirmation best-effort: delegate
	// failures are logged and the request proceeds without settlement info.
	// When false (the default), a delegate rejection aborts with 402 and an
	// unreachable delegate aborts with 502.
	SettlementOptional bool

	// Network is the chain this server accepts payments on (e.g.
	// "polkadot:westend"). Required.
	Network string

	// Asset restricts payments to one asset identifier (optional).
	Asset string

	// PayTo is the address payments must be made out to. Required.
	PayTo string

	// EndpointPricing maps URL patterns to pricing rules.
	// Patterns support exact matches ("/v1/endpoint") and wildcards ("/v1/*").
	EndpointPricing map[string]PricingRule

	// MethodPricing maps gRPC method names to pricing rules.
	// Methods are full names like "/package.Service/Method"; wildcards like
	// "/package.Service/*" match all methods in a service.
	MethodPricing map[string]PricingRule

	// DefaultPricing is used when no pattern matches (optional).
	// If nil, unmatched endpoints don't require payment.
	DefaultPricing *PricingRule

	// ValidityDuration is the validity window advertised in offers.
	// Defaults to 5 minutes.
	ValidityDuration time.Duration

	// MaxValidityWindow bounds how far in the future a payment's expiry may
	// lie: payments with validUntil further than this from now are rejected.
	// Defaults to 10 minutes.
	MaxValidityWindow time.Duration

	// AllowTestPayments disables the amount-sufficiency check so test
	// payments of any size are admitted.
	AllowTestPayments bool

	// CustomCheck is an optional caller-supplied predicate; a non-nil return
	// rejects the payment with 403.
	CustomCheck func(payload *PaymentPayload, info RequestInfo) error

	// SkipPaths lists paths that bypass payment checks entirely.
	SkipPaths []string

	// SkipMethods lists gRPC methods that bypass payment checks.
	SkipMethods []string

	// CustomPaywallHTML is custom HTML to return for browser requests (optional).
	CustomPaywallHTML string

	// Logger receives pipeline logging. Defaults to the standard logrus logger.
	Logger logrus.FieldLogger

	// X402Version is carried through headers and 402 bodies. Defaults to 1.
	X402Version int
}

// PricingRule defines payment requirements for an endpoint or method.
type PricingRule struct {
	// Amount is the price in atomic units, a base-10 integer string.
	Amount string

	// PriceFunc computes the price per request (optional). When set it
	// overrides Amount for the request it is evaluated against.
	PriceFunc func(info RequestInfo) string

	// Description explains what this payment is for.
	Description string

	// MimeType of the resource being sold (optional).
	MimeType string

	// OutputSchema is a JSON schema describing the response format (optional).
	OutputSchema map[string]interface{}

	// Extra carries scheme-specific hints into the offer (optional).
	Extra map[string]interface{}
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.Verifier == nil {
		return NewPaymentError(ErrCodeInvalidConfig, "verifier is required", nil)
	}
	if c.Network == "" {
		return NewPaymentError(ErrCodeInvalidConfig, "network is required", nil)
	}
	if c.PayTo == "" {
		return NewPaymentError(ErrCodeInvalidConfig, "payTo is required", nil)
	}

	if c.ValidityDuration == 0 {
		c.ValidityDuration = 5 * time.Minute
	}
	if c.MaxValidityWindow == 0 {
		c.MaxValidityWindow = 10 * time.Minute
	}
	if c.X402Version == 0 {
		c.X402Version = ProtocolVersion
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}

	for pattern, rule := range c.EndpointPricing {
		if err := rule.Validate(); err != nil {
			return NewPaymentError(ErrCodeInvalidConfig, fmt.Sprintf("invalid pricing rule for pattern %q", pattern), err)
		}
	}
	for method, rule := range c.MethodPricing {
		if err := rule.Validate(); err != nil {
			return NewPaymentError(ErrCodeInvalidConfig, fmt.Sprintf("invalid pricing rule for method %q", method), err)
		}
	}
	if c.DefaultPricing != nil {
		if err := c.DefaultPricing.Validate(); err != nil {
			return NewPaymentError(ErrCodeInvalidConfig, "invalid default pricing rule", err)
		}
	}

	return nil
}

// Validate checks if the pricing rule is valid.
func (p *PricingRule) Validate() error {
	if p.Amount == "" && p.PriceFunc == nil {
		return fmt.Errorf("amount or price function is required")
	}
	if p.Amount != "" {
		if _, err := ParseAmount(p.Amount); err != nil {
			return fmt.Errorf("invalid amount %q: %w", p.Amount, err)
		}
	}
	return nil
}

// Price resolves the rule's price for a request.
func (p *PricingRule) Price(info RequestInfo) string {
	if p.PriceFunc != nil {
		return p.PriceFunc(info)
	}
	return p.Amount
}

// BuildRequirements constructs the offer list advertised in a 402 response
// for a matched rule.
func (c *Config) BuildRequirements(rule *PricingRule, resource string, info RequestInfo) []PaymentRequirements {
	return []PaymentRequirements{
		{
			Scheme:            SchemeExact,
			Network:           c.Network,
			PayTo:             c.PayTo,
			MaxAmountRequired: rule.Price(info),
			Asset:             c.Asset,
			Resource:          resource,
			Description:       rule.Description,
			MimeType:          rule.MimeType,
			MaxTimeoutSeconds: int(c.ValidityDuration.Seconds()),
			OutputSchema:      rule.OutputSchema,
			Extra:             rule.Extra,
		},
	}
}

// MatchEndpoint finds the pricing rule for a given path.
func (c *Config) MatchEndpoint(requestPath string) (*PricingRule, bool) {
	return matchRules(requestPath, c.EndpointPricing, c.SkipPaths, c.DefaultPricing)
}

// MatchMethod finds the pricing rule for a given gRPC method.
func (c *Config) MatchMethod(fullMethod string) (*PricingRule, bool) {
	return matchRules(fullMethod, c.MethodPricing, c.SkipMethods, c.DefaultPricing)
}

func matchRules(name string, rules map[string]PricingRule, skip []string, fallback *PricingRule) (*PricingRule, bool) {
	for _, s := range skip {
		if matchPath(name, s) {
			return nil, false
		}
	}

	if rule, ok := rules[name]; ok {
		return &rule, true
	}

	// Longest matching pattern wins.
	var bestMatch string
	var bestRule *PricingRule
	for pattern, rule := range rules {
		if matchPath(name, pattern) && len(pattern) > len(bestMatch) {
			bestMatch = pattern
			ruleCopy := rule
			bestRule = &ruleCopy
		}
	}
	if bestRule != nil {
		return bestRule, true
	}

	if fallback != nil {
		return fallback, true
	}
	return nil, false
}

func matchPath(requestPath, pattern string) bool {
	if requestPath == pattern {
		return true
	}

	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		return strings.HasPrefix(requestPath, prefix+"/") || requestPath == prefix
	}

	matched, _ := path.Match(pattern, requestPath)
	return matched
}

// ParseAmount parses a base-10 non-negative integer amount string.
func ParseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not a base-10 integer: %q", s)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount is negative: %q", s)
	}
	return amount, nil
}

// fileConfig is the YAML-loadable subset of Config.
type fileConfig struct {
	Network            string `yaml:"network"`
	Asset              string `yaml:"asset"`
	PayTo              string `yaml:"pay_to"`
	ValidityMinutes    int    `yaml:"validity_minutes"`
	MaxValidityMinutes int    `yaml:"max_validity_minutes"`
	AllowTestPayments  bool   `yaml:"allow_test_payments"`
	SettlementOptional bool   `yaml:"settlement_optional"`

	SkipPaths   []string `yaml:"skip_paths"`
	SkipMethods []string `yaml:"skip_methods"`

	Endpoints map[string]filePricingRule `yaml:"endpoints"`
	Methods   map[string]filePricingRule `yaml:"methods"`
}

type filePricingRule struct {
	Amount      string `yaml:"amount"`
	Description string `yaml:"description"`
	MimeType    string `yaml:"mime_type"`
}

// LoadConfigFile reads the file-shaped part of a Config from YAML. The
// caller still supplies the Verifier, the Settler and any functions before
// using the result.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewPaymentError(ErrCodeInvalidConfig, fmt.Sprintf("failed to read config file %s", path), err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, NewPaymentError(ErrCodeInvalidConfig, fmt.Sprintf("failed to parse config file %s", path), err)
	}

	cfg := &Config{
		Network:            fc.Network,
		Asset:              fc.Asset,
		PayTo:              fc.PayTo,
		AllowTestPayments:  fc.AllowTestPayments,
		SettlementOptional: fc.SettlementOptional,
		SkipPaths:          fc.SkipPaths,
		SkipMethods:        fc.SkipMethods,
		ValidityDuration:   time.Duration(fc.ValidityMinutes) * time.Minute,
		MaxValidityWindow:  time.Duration(fc.MaxValidityMinutes) * time.Minute,
	}

	if len(fc.Endpoints) > 0 {
		cfg.EndpointPricing = make(map[string]PricingRule, len(fc.Endpoints))
		for pattern, rule := range fc.Endpoints {
			cfg.EndpointPricing[pattern] = PricingRule{
				Amount:      rule.Amount,
				Description: rule.Description,
				MimeType:    rule.MimeType,
			}
		}
	}
	if len(fc.Methods) > 0 {
		cfg.MethodPricing = make(map[string]PricingRule, len(fc.Methods))
		for method, rule := range fc.Methods {
			cfg.MethodPricing[method] = PricingRule{
				Amount:      rule.Amount,
				Description: rule.Description,
				MimeType:    rule.MimeType,
			}
		}
	}

	return cfg, nil
}
