package model

import (
    "time"

    "github.com/google/uuid"
)

// Notification types understood by client applications.  TypeSystemUpdate
// bypasses quiet-hours suppression.
const (
    TypeBookingUpdate = "booking_update"
    TypeSystemUpdate  = "system_update"
)

// PriorityBypassQuietHours is the minimum priority at which a notification
// is delivered even inside a device's quiet window.
const PriorityBypassQuietHours = 7

// SyncNotification is created for each user affected by a ledger mutation
// and consumed by the device fan-out.  It is retained for delivery audit
// and is not replayed after delivery; a device that missed its push pulls
// the current ledger state on reconnect instead.
//
// TargetDevices and ExcludeDevices override the default delivery set of
// "all active devices of the user except the originating device".
type SyncNotification struct {
    ID                uuid.UUID   `json:"id"`
    UserID            string      `json:"user_id"`
    Title             string      `json:"title"`
    Body              string      `json:"body"`
    Type              string      `json:"type"`
    Priority          int         `json:"priority"` // 0-10
    TargetDevices     []uuid.UUID `json:"target_devices,omitempty"`
    ExcludeDevices    []uuid.UUID `json:"exclude_devices,omitempty"`
    OriginatingDevice *uuid.UUID  `json:"originating_device,omitempty"`
    ScheduledAt       *time.Time  `json:"scheduled_at,omitempty"`
    CreatedAt         time.Time   `json:"created_at"`
}

// Delivery outcomes recorded per device.  One device's failure never blocks
// delivery to the others.
const (
    DeliveryDelivered   = "delivered"
    DeliverySuppressed  = "suppressed"
    DeliveryNoEndpoint  = "no_endpoint"
    DeliveryUnsupported = "unsupported"
    DeliveryFailed      = "failed"
)

// DeliveryRecord is the per-device outcome of one notification attempt.
type DeliveryRecord struct {
    NotificationID uuid.UUID `json:"notification_id"`
    DeviceID       uuid.UUID `json:"device_id"`
    Status         string    `json:"status"`
    Detail         string    `json:"detail,omitempty"`
    AttemptedAt    time.Time `json:"attempted_at"`
}
