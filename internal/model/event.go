package model

import "time"

// EventKind names a signal lifecycle transition.
type EventKind string

const (
	EventOpened    EventKind = "SIGNAL_OPENED"
	EventClosed    EventKind = "SIGNAL_CLOSED"
	EventDismissed EventKind = "SIGNAL_DISMISSED"
)

// SignalEvent is emitted for every lifecycle transition and fanned out to
// notifiers. Delivery is best effort.
type SignalEvent struct {
	Kind   EventKind `json:"kind"`
	Signal Signal    `json:"signal"`
	At     time.Time `json:"at"`
}
