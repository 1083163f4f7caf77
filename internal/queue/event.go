// Package queue defines message payloads exchanged over the message broker
// and the publisher/consumer pair that carries them.  One BookingMutated
// event is published per committed ledger mutation; the device fan-out and
// the incremental external sync both consume it, which keeps the ledger
// decoupled from its observers.
package queue

import (
    "time"

    "github.com/google/uuid"

    "github.com/mariia-hub/booking-engine/internal/model"
)

// MutationQueueName is the durable queue all booking mutations flow through.
const MutationQueueName = "booking.mutations"

// Mutation kinds carried by BookingMutated events.
const (
    MutationReserve    = "reserve"
    MutationReschedule = "reschedule"
    MutationCancel     = "cancel"
    MutationConfirm    = "confirm"
    MutationComplete   = "complete"
)

// BookingMutated is published once per committed booking mutation.  It
// contains enough information for downstream consumers to notify devices
// and trigger incremental reconciliation without querying the primary
// database.
type BookingMutated struct {
    MutationKind   string        `json:"mutation_kind"`
    Booking        model.Booking `json:"booking"`
    AffectedUserID string        `json:"affected_user_id"`
    OriginDevice   *uuid.UUID    `json:"origin_device,omitempty"`
    OccurredAt     time.Time     `json:"occurred_at"`
}
