package enums

// CheckoutSessionStatus tracks a checkout session from quote acceptance to settlement.
type CheckoutSessionStatus string

const (
	CheckoutSessionPending         CheckoutSessionStatus = "PENDING"
	CheckoutSessionAwaitingPayment CheckoutSessionStatus = "AWAITING_PAYMENT"
	CheckoutSessionPaid            CheckoutSessionStatus = "PAID"
	CheckoutSessionFailed          CheckoutSessionStatus = "FAILED"
	CheckoutSessionExpired         CheckoutSessionStatus = "EXPIRED"
)

var validCheckoutSessionStatuses = []CheckoutSessionStatus{
	CheckoutSessionPending,
	CheckoutSessionAwaitingPayment,
	CheckoutSessionPaid,
	CheckoutSessionFailed,
	CheckoutSessionExpired,
}

// String implements fmt.Stringer.
func (s CheckoutSessionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CheckoutSessionStatus.
func (s CheckoutSessionStatus) IsValid() bool {
	return oneOf(s, validCheckoutSessionStatuses)
}

// IsOpen reports whether the session can still be paid or expired by the sweeper.
func (s CheckoutSessionStatus) IsOpen() bool {
	return s == CheckoutSessionPending || s == CheckoutSessionAwaitingPayment
}

// CanInitiatePayment reports whether a fresh payment reference may be issued.
func (s CheckoutSessionStatus) CanInitiatePayment() bool {
	return s == CheckoutSessionPending || s == CheckoutSessionFailed
}

// ParseCheckoutSessionStatus converts raw input into a CheckoutSessionStatus.
func ParseCheckoutSessionStatus(value string) (CheckoutSessionStatus, error) {
	return parseAs("checkout session status", value, validCheckoutSessionStatuses)
}

// SettleableSessionStatuses lists the states a verified successful payment may move to PAID.
var SettleableSessionStatuses = []CheckoutSessionStatus{
	CheckoutSessionPending,
	CheckoutSessionAwaitingPayment,
	CheckoutSessionFailed,
	CheckoutSessionExpired,
}

// OpenSessionStatuses lists the states the expiry sweep may transition.
var OpenSessionStatuses = []CheckoutSessionStatus{
	CheckoutSessionPending,
	CheckoutSessionAwaitingPayment,
}
