package model

import (
    "time"

    "github.com/google/uuid"
)

// ConflictKind classifies the divergence the sync engine observed between
// the local ledger and the external platform for one slot key.
type ConflictKind string

const (
    // ConflictDoubleClaim means both sides hold an active booking for the
    // slot under different customers.  Two people were told they hold the
    // same slot; this is never auto-resolved.
    ConflictDoubleClaim ConflictKind = "double_claim"
    // ConflictExternalOnly means the external platform holds an active
    // booking with no local counterpart and no explaining cancellation.
    ConflictExternalOnly ConflictKind = "external_only"
    // ConflictLocalOnly means a local booking could not be propagated to
    // the external platform.
    ConflictLocalOnly ConflictKind = "local_only"
    // ConflictCapacity means adopting an external booking would have
    // violated the slot's capacity invariant.
    ConflictCapacity ConflictKind = "capacity"
)

// Resolution names the policy applied to a conflict.
type Resolution string

const (
    ResolvePreferLocal    Resolution = "prefer_local"
    ResolvePreferExternal Resolution = "prefer_external"
    ResolveManual         Resolution = "manual"
)

// ConflictRecord is evidence of divergence between local and external
// booking state for one slot.  The sync engine only ever creates records
// and proposes resolutions; applying a resolution goes through the booking
// ledger so the capacity invariant holds even while healing divergence.
// Resolved records are kept as an archive, never reopened.
type ConflictRecord struct {
    ID               uuid.UUID    `json:"id"`
    Slot             SlotKey      `json:"slot"`
    LocalBookingID   *uuid.UUID   `json:"local_booking_id,omitempty"`
    ExternalRef      *string      `json:"external_ref,omitempty"`
    ExternalCustomer *string      `json:"external_customer,omitempty"`
    Kind             ConflictKind `json:"kind"`
    DetectedAt       time.Time    `json:"detected_at"`
    ResolutionStatus string       `json:"resolution_status"` // pending | resolved
    Resolution       *Resolution  `json:"resolution,omitempty"`
    ResolvedAt       *time.Time   `json:"resolved_at,omitempty"`
}
