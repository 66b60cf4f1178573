package enums

// EscrowHoldStatus tracks funds earmarked for a seller.
type EscrowHoldStatus string

const (
	EscrowHoldHeld     EscrowHoldStatus = "HELD"
	EscrowHoldReleased EscrowHoldStatus = "RELEASED"
	EscrowHoldRefunded EscrowHoldStatus = "REFUNDED"
)

var validEscrowHoldStatuses = []EscrowHoldStatus{
	EscrowHoldHeld,
	EscrowHoldReleased,
	EscrowHoldRefunded,
}

// String implements fmt.Stringer.
func (s EscrowHoldStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known EscrowHoldStatus.
func (s EscrowHoldStatus) IsValid() bool {
	return oneOf(s, validEscrowHoldStatuses)
}

// ParseEscrowHoldStatus converts raw input into an EscrowHoldStatus.
func ParseEscrowHoldStatus(value string) (EscrowHoldStatus, error) {
	return parseAs("escrow hold status", value, validEscrowHoldStatuses)
}
