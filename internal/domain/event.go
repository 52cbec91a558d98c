package domain

// EventKind tags a decoded device line
type EventKind string

const (
	EventAmountUpdate        EventKind = "amount_update"
	EventTransactionComplete EventKind = "transaction_complete"
	EventUnrecognized        EventKind = "unrecognized"
)

// DeviceEvent is one decoded line from the dispensing controller.
//
// AmountUpdate carries Amount. TransactionComplete carries Amount only when
// HasAmount is set (the same line also reported a PAID value). Unrecognized
// keeps the raw line and, for lines that looked like a PAID report but could
// not be parsed, the decode error.
type DeviceEvent struct {
	Kind      EventKind
	Amount    int
	HasAmount bool
	Raw       string
	Err       error
}

// AmountUpdate builds an informational paid-so-far event
func AmountUpdate(amount int, raw string) DeviceEvent {
	return DeviceEvent{Kind: EventAmountUpdate, Amount: amount, HasAmount: true, Raw: raw}
}

// TransactionComplete builds a terminal event
func TransactionComplete(raw string) DeviceEvent {
	return DeviceEvent{Kind: EventTransactionComplete, Raw: raw}
}

// Unrecognized builds an event the state machine ignores
func Unrecognized(raw string, err error) DeviceEvent {
	return DeviceEvent{Kind: EventUnrecognized, Raw: raw, Err: err}
}
