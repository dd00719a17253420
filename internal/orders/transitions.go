package orders

import (
	"errors"
	"fmt"
)

type Event string

const (
	EventConfirm          Event = "CONFIRM"
	EventPickUp           Event = "PICK_UP"
	EventStartWashing     Event = "START_WASHING"
	EventRequestPayment   Event = "REQUEST_PAYMENT"
	EventCollectCash      Event = "COLLECT_CASH"
	EventPaymentSucceeded Event = "PAYMENT_SUCCEEDED"
	EventCancel           Event = "CANCEL"
)

// ErrInvalidTransition is returned for event/status pairs the table rejects.
var ErrInvalidTransition = errors.New("invalid order transition")

type edge struct {
	from Status
	ev   Event
}

// transitions is the only place order status moves are defined. A successful
// payment before the vendor asks for it leaves the status alone; the order
// finishes through the regular vendor flow.
var transitions = map[edge]Status{
	{StatusPending, EventConfirm}:                  StatusConfirmed,
	{StatusPending, EventCancel}:                   StatusCancelled,
	{StatusConfirmed, EventPickUp}:                 StatusPickedUp,
	{StatusConfirmed, EventCancel}:                 StatusCancelled,
	{StatusPickedUp, EventStartWashing}:            StatusInWashing,
	{StatusInWashing, EventRequestPayment}:         StatusPaymentRequired,
	{StatusPaymentRequired, EventCollectCash}:      StatusCompleted,
	{StatusPaymentRequired, EventPaymentSucceeded}: StatusCompleted,

	{StatusPending, EventPaymentSucceeded}:   StatusPending,
	{StatusConfirmed, EventPaymentSucceeded}: StatusConfirmed,
	{StatusPickedUp, EventPaymentSucceeded}:  StatusPickedUp,
	{StatusInWashing, EventPaymentSucceeded}: StatusInWashing,
	{StatusCompleted, EventPaymentSucceeded}: StatusCompleted,
	{StatusCancelled, EventPaymentSucceeded}: StatusCancelled,
}

// Transition returns the status that follows from applying ev in status from.
func Transition(from Status, ev Event) (Status, error) {
	next, ok := transitions[edge{from, ev}]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
	}
	return next, nil
}

// Next applies ev to o, also enforcing per-order guards the status table
// cannot express: cash collection is only for COD orders.
func Next(o Order, ev Event) (Status, error) {
	if ev == EventCollectCash && o.PaymentMethod != MethodCOD {
		return "", fmt.Errorf("%w: %s requires %s payment", ErrInvalidTransition, ev, MethodCOD)
	}
	if ev == EventCollectCash && o.Paid() {
		return "", fmt.Errorf("%w: order already paid", ErrInvalidTransition)
	}
	return Transition(o.Status, ev)
}

// VendorEvents are the events a vendor may trigger directly.
var VendorEvents = map[Event]bool{
	EventConfirm:        true,
	EventPickUp:         true,
	EventStartWashing:   true,
	EventRequestPayment: true,
	EventCollectCash:    true,
	EventCancel:         true,
}
