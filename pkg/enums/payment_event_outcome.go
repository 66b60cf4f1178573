package enums

// PaymentEventOutcome records what the reconciler did with a webhook delivery.
type PaymentEventOutcome string

const (
	PaymentEventReceived  PaymentEventOutcome = "received"
	PaymentEventApplied   PaymentEventOutcome = "applied"
	PaymentEventDuplicate PaymentEventOutcome = "duplicate"
	PaymentEventIgnored   PaymentEventOutcome = "ignored"
	PaymentEventFailed    PaymentEventOutcome = "failed"
	PaymentEventReview    PaymentEventOutcome = "review"
	PaymentEventRejected  PaymentEventOutcome = "rejected"
)

var validPaymentEventOutcomes = []PaymentEventOutcome{
	PaymentEventReceived,
	PaymentEventApplied,
	PaymentEventDuplicate,
	PaymentEventIgnored,
	PaymentEventFailed,
	PaymentEventReview,
	PaymentEventRejected,
}

// String implements fmt.Stringer.
func (o PaymentEventOutcome) String() string {
	return string(o)
}

// IsValid reports whether the value is a known PaymentEventOutcome.
func (o PaymentEventOutcome) IsValid() bool {
	return oneOf(o, validPaymentEventOutcomes)
}

// ParsePaymentEventOutcome converts raw input into a PaymentEventOutcome.
func ParsePaymentEventOutcome(value string) (PaymentEventOutcome, error) {
	return parseAs("payment event outcome", value, validPaymentEventOutcomes)
}
