package model

import (
    "time"

    "github.com/google/uuid"
)

// Device is a client device registered by a user for booking-state sync.
// Devices are weak references from a user: the fan-out looks them up by
// UserID at delivery time and stores nothing on their behalf beyond the
// per-delivery outcome.  A device is deactivated on sign-out or staleness,
// never deleted.
//
// QuietStartMin/QuietEndMin define an optional do-not-disturb window in
// minutes from midnight UTC.  The window may wrap past midnight
// (e.g. 22:00–07:00).  Notifications with priority 7 or higher, and
// system_update notifications, bypass the window.
type Device struct {
    ID            uuid.UUID `json:"id"`
    UserID        string    `json:"user_id"`
    Platform      string    `json:"platform"` // ios | android | web
    PushAddress   *string   `json:"push_address,omitempty"`
    IsActive      bool      `json:"is_active"`
    DoNotDisturb  bool      `json:"do_not_disturb"`
    QuietStartMin *int      `json:"quiet_start_min,omitempty"`
    QuietEndMin   *int      `json:"quiet_end_min,omitempty"`
    CreatedAt     time.Time `json:"created_at"`
    UpdatedAt     time.Time `json:"updated_at"`
}

// InQuietWindow reports whether the given instant falls inside the device's
// configured quiet window.  Devices without a configured window are never
// quiet.  The comparison uses the UTC minute of day; a window whose end is
// not after its start wraps past midnight.
func (d *Device) InQuietWindow(at time.Time) bool {
    if d.QuietStartMin == nil || d.QuietEndMin == nil {
        return false
    }
    start, end := *d.QuietStartMin, *d.QuietEndMin
    minute := at.UTC().Hour()*60 + at.UTC().Minute()
    if start == end {
        return false
    }
    if start < end {
        return minute >= start && minute < end
    }
    return minute >= start || minute < end
}
