package enums

// PaymentMethod is how the buyer settles an order.
type PaymentMethod string

const (
	PaymentMethodCOD  PaymentMethod = "COD"
	PaymentMethodBank PaymentMethod = "BANK"
)

var paymentMethods = values[PaymentMethod]{"payment method", []PaymentMethod{
	PaymentMethodCOD,
	PaymentMethodBank,
}}

func (p PaymentMethod) IsValid() bool { return paymentMethods.has(p) }

func ParsePaymentMethod(value string) (PaymentMethod, error) { return paymentMethods.parse(value) }

// InitialPaymentStatus is the payment status an order starts with. BANK
// orders carry a client-supplied transfer proof and count as paid.
func (p PaymentMethod) InitialPaymentStatus() PaymentStatus {
	if p == PaymentMethodBank {
		return PaymentStatusCompleted
	}
	return PaymentStatusPending
}

func (p PaymentMethod) RequiresTransactionID() bool {
	return p == PaymentMethodBank
}
