package orders

import (
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

var statusTransitions = map[enums.OrderStatus]map[enums.OrderStatus]bool{
	enums.OrderStatusPending: {
		enums.OrderStatusProcessing: true,
		enums.OrderStatusCancelled:  true,
	},
	enums.OrderStatusProcessing: {
		enums.OrderStatusShipped:   true,
		enums.OrderStatusCancelled: true,
	},
	enums.OrderStatusShipped: {
		enums.OrderStatusDelivered: true,
	},
}

var paymentTransitions = map[enums.PaymentStatus]map[enums.PaymentStatus]bool{
	enums.PaymentStatusPending: {
		enums.PaymentStatusCompleted: true,
		enums.PaymentStatusFailed:    true,
	},
	enums.PaymentStatusFailed: {
		enums.PaymentStatusPending:   true,
		enums.PaymentStatusCompleted: true,
	},
	// refund or chargeback correction
	enums.PaymentStatusCompleted: {
		enums.PaymentStatusFailed: true,
	},
}

// terminalError rejects any change to a delivered or cancelled order.
func terminalError(current enums.OrderStatus) error {
	switch current {
	case enums.OrderStatusDelivered:
		return pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonOrderDelivered, "order has already been delivered")
	case enums.OrderStatusCancelled:
		return pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonOrderCancelled, "order has been cancelled")
	}
	return nil
}

// CheckStatusTransition reports whether an order may move from current to target.
func CheckStatusTransition(current, target enums.OrderStatus) error {
	if err := terminalError(current); err != nil {
		return err
	}
	if !statusTransitions[current][target] {
		return pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonInvalidTransition, "cannot move order from "+string(current)+" to "+string(target)).
			WithDetails(map[string]any{"from": current, "to": target})
	}
	return nil
}

// CheckPaymentTransition reports whether the payment status of an order in
// orderStatus may move from current to target.
func CheckPaymentTransition(orderStatus enums.OrderStatus, current, target enums.PaymentStatus) error {
	if err := terminalError(orderStatus); err != nil {
		return err
	}
	if !paymentTransitions[current][target] {
		return pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonInvalidTransition, "cannot move payment from "+string(current)+" to "+string(target)).
			WithDetails(map[string]any{"from": current, "to": target})
	}
	return nil
}

// Cancellable reports whether an order in status may still be cancelled.
func Cancellable(status enums.OrderStatus) bool {
	return statusTransitions[status][enums.OrderStatusCancelled]
}
