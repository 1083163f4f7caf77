package model

import (
    "time"

    "github.com/google/uuid"
)

// BookingStatus is the lifecycle state of a booking.  A booking only moves
// forward through pending → confirmed → completed, or sideways to cancelled
// from any non-terminal state.  Completed and cancelled are terminal.
type BookingStatus string

const (
    StatusPending   BookingStatus = "pending"
    StatusConfirmed BookingStatus = "confirmed"
    StatusCompleted BookingStatus = "completed"
    StatusCancelled BookingStatus = "cancelled"
)

// BookingSource records which system originated a claim: this service or
// the external scheduling platform.
type BookingSource string

const (
    SourceLocal    BookingSource = "local"
    SourceExternal BookingSource = "external"
)

// Booking is a claim on a slot by a customer.  Bookings are append-mostly:
// they are created on reservation, mutated on confirm/reschedule/cancel and
// never physically deleted, so cancellations keep their audit history.
//
// The reschedule token is an opaque, unguessable value delivered to the
// customer out of band; possession of the token is the sole authorization
// for rescheduling or cancelling that one booking.
type Booking struct {
    ID              uuid.UUID     `json:"id"`
    Slot            SlotKey       `json:"slot"`
    EndsAt          time.Time     `json:"ends_at"`
    TemplateID      uint64        `json:"template_id"`
    CustomerID      string        `json:"customer_id"`
    Status          BookingStatus `json:"status"`
    Source          BookingSource `json:"source"`
    ExternalRef     *string       `json:"external_ref,omitempty"`
    RescheduleToken string        `json:"reschedule_token,omitempty"`
    RescheduledTo   *uuid.UUID    `json:"rescheduled_to,omitempty"`
    CancelledAt     *time.Time    `json:"cancelled_at,omitempty"`
    CreatedAt       time.Time     `json:"created_at"`
    UpdatedAt       time.Time     `json:"updated_at"`
}

// Active reports whether the booking currently counts against its slot's
// capacity.  Only cancelled bookings release their claim.
func (b *Booking) Active() bool {
    return b.Status != StatusCancelled
}

// CanTransition reports whether moving from the booking's current status to
// next is a legal state-machine step.  Idempotent cancellation is handled by
// the ledger, not here: cancelled → cancelled is not a transition.
func (b *Booking) CanTransition(next BookingStatus) bool {
    switch b.Status {
    case StatusPending:
        return next == StatusConfirmed || next == StatusCancelled
    case StatusConfirmed:
        return next == StatusCompleted || next == StatusCancelled
    default:
        return false
    }
}
