// Package ledger is the authoritative owner of bookings and the guardian
// of the capacity invariant: for any slot key, at most capacity bookings
// are ever simultaneously non-cancelled.  Every component that wants to
// claim or release a slot — user handlers and the external sync engine
// alike — goes through this package; nothing else writes booking status.
package ledger

import (
    "errors"
    "fmt"
)

// ErrSlotUnavailable is returned when a slot cannot be claimed: it is
// already at capacity, no enabled template generates it, or the claim
// could not be serialized within the bounded wait.  The condition is
// client-correctable: re-query availability and pick again.
var ErrSlotUnavailable = errors.New("slot unavailable")

// ErrCapacityExceeded is the capacity-specific flavour of
// ErrSlotUnavailable, raised when a multi-capacity slot has every place
// taken.  It matches ErrSlotUnavailable under errors.Is; the distinct
// value exists so callers can phrase the failure ("fully booked" rather
// than "slot gone").
var ErrCapacityExceeded = fmt.Errorf("%w: capacity exceeded", ErrSlotUnavailable)

// ErrSlotInPast is returned when the requested slot's start is not
// strictly after the current instant.  There is no retroactive booking.
var ErrSlotInPast = errors.New("slot in past")

// ErrInvalidToken is returned when a reschedule token matches no booking
// that can still be acted on.  Terminal for the request; retrying with the
// same token cannot succeed.
var ErrInvalidToken = errors.New("invalid reschedule token")

// ErrInvalidTransition is returned for a status change the booking state
// machine forbids, such as confirming a cancelled booking or cancelling a
// completed one.
var ErrInvalidTransition = errors.New("invalid status transition")

// Retryable reports whether the caller may correct the failure by
// re-querying availability and retrying with a fresh slot.
func Retryable(err error) bool {
    return errors.Is(err, ErrSlotUnavailable)
}
