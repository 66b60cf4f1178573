package enums

// PaymentAttemptStatus marks whether an issued payment reference is still current.
type PaymentAttemptStatus string

const (
	PaymentAttemptActive     PaymentAttemptStatus = "ACTIVE"
	PaymentAttemptSuperseded PaymentAttemptStatus = "SUPERSEDED"
)

// String implements fmt.Stringer.
func (p PaymentAttemptStatus) String() string {
	return string(p)
}
