package errors

// Reason is the machine-readable business rule that rejected a request.
// Clients branch on it; Code only drives the HTTP status.
type Reason string

const (
	ReasonMissingProductID     Reason = "MISSING_PRODUCT_ID"
	ReasonInvalidQuantity      Reason = "INVALID_QUANTITY"
	ReasonProductNotFound      Reason = "PRODUCT_NOT_FOUND"
	ReasonCartNotFound         Reason = "CART_NOT_FOUND"
	ReasonItemNotFound         Reason = "ITEM_NOT_FOUND"
	ReasonInsufficientStock    Reason = "INSUFFICIENT_STOCK"
	ReasonCartEmpty            Reason = "CART_EMPTY"
	ReasonInvalidCode          Reason = "INVALID_CODE"
	ReasonCodeNotStarted       Reason = "CODE_NOT_STARTED"
	ReasonCodeExpired          Reason = "CODE_EXPIRED"
	ReasonMinSpendNotMet       Reason = "MIN_SPEND_NOT_MET"
	ReasonCodeExists           Reason = "CODE_EXISTS"
	ReasonInvalidDiscountValue Reason = "INVALID_DISCOUNT_VALUE"
	ReasonInvalidDateRange     Reason = "INVALID_DATE_RANGE"
	ReasonInvalidAddress       Reason = "INVALID_ADDRESS"
	ReasonInvalidPayment       Reason = "INVALID_PAYMENT_METHOD"
	ReasonTransactionIDMissing Reason = "TRANSACTION_ID_REQUIRED"
	ReasonInvalidStatus        Reason = "INVALID_STATUS"
	ReasonInvalidPaymentStatus Reason = "INVALID_PAYMENT_STATUS"
	ReasonInvalidTransition    Reason = "INVALID_TRANSITION"
	ReasonCannotCancel         Reason = "CANNOT_CANCEL"
	ReasonOrderCancelled       Reason = "ORDER_CANCELLED"
	ReasonOrderDelivered       Reason = "ORDER_DELIVERED"
	ReasonOrderNotFound        Reason = "ORDER_NOT_FOUND"
	ReasonOrderNotDeletable    Reason = "ORDER_NOT_DELETABLE"
	ReasonAlreadyInWishlist    Reason = "ALREADY_IN_WISHLIST"
	ReasonEmailTaken           Reason = "EMAIL_TAKEN"
	ReasonUserNotFound         Reason = "USER_NOT_FOUND"
	ReasonAddressNotFound      Reason = "ADDRESS_NOT_FOUND"
	ReasonAddressLimit         Reason = "ADDRESS_LIMIT_REACHED"
	ReasonInvalidPassword      Reason = "INVALID_PASSWORD"
	ReasonSamePassword         Reason = "SAME_PASSWORD"
	ReasonSelfModification     Reason = "SELF_MODIFICATION"
)
