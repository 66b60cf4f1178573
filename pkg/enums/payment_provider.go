package enums

import "strings"

// PaymentProvider identifies the external gateway that collected a payment.
type PaymentProvider string

const (
	PaymentProviderPaystack PaymentProvider = "paystack"
	PaymentProviderSquare   PaymentProvider = "square"
)

var validPaymentProviders = []PaymentProvider{
	PaymentProviderPaystack,
	PaymentProviderSquare,
}

// String implements fmt.Stringer.
func (p PaymentProvider) String() string {
	return string(p)
}

// IsValid reports whether the provider is supported.
func (p PaymentProvider) IsValid() bool {
	return oneOf(p, validPaymentProviders)
}

// ParsePaymentProvider converts raw input into a PaymentProvider. Matching is case-insensitive.
func ParsePaymentProvider(value string) (PaymentProvider, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	return parseAs("payment provider", normalized, validPaymentProviders)
}
