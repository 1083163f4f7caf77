package model

import (
    "fmt"
    "time"
)

// AvailabilityTemplate describes a recurring weekly open-hours rule for a
// location and service category.  Concrete bookable slots are derived from
// templates on demand and are never persisted.  A template that is already
// referenced by bookings must not be deleted; it is soft-disabled instead
// so that history stays intact while no new slots are generated from it.
//
// Fields:
//  ID              – primary key identifier.
//  Location        – location code the rule applies to.
//  ServiceCategory – service category the rule applies to.
//  DayOfWeek       – weekday, 0 (Sunday) through 6 (Saturday).
//  StartTime       – opening time of day, "HH:MM" in UTC.
//  EndTime         – closing time of day, "HH:MM" in UTC.
//  SlotDuration    – length of each generated slot in minutes.
//  Capacity        – maximum simultaneous non-cancelled bookings per slot.
//  Disabled        – soft-disable flag; disabled templates generate nothing.
type AvailabilityTemplate struct {
    ID              uint64    `json:"id"`
    Location        string    `json:"location"`
    ServiceCategory string    `json:"service_category"`
    DayOfWeek       int       `json:"day_of_week"`
    StartTime       string    `json:"start_time"`
    EndTime         string    `json:"end_time"`
    SlotDuration    int       `json:"slot_duration_minutes"`
    Capacity        int       `json:"capacity"`
    Disabled        bool      `json:"disabled"`
    CreatedAt       time.Time `json:"created_at"`
    UpdatedAt       time.Time `json:"updated_at"`
}

// Validate checks the structural invariants of a template: a known weekday,
// a positive slot duration, a capacity of at least one and an end time that
// lies strictly after the start time.  It returns a descriptive error for
// the first violation found.
func (t *AvailabilityTemplate) Validate() error {
    if t.Location == "" {
        return fmt.Errorf("location is required")
    }
    if t.ServiceCategory == "" {
        return fmt.Errorf("service_category is required")
    }
    if t.DayOfWeek < 0 || t.DayOfWeek > 6 {
        return fmt.Errorf("day_of_week must be 0-6, got %d", t.DayOfWeek)
    }
    start, err := ParseMinuteOfDay(t.StartTime)
    if err != nil {
        return fmt.Errorf("start_time: %w", err)
    }
    end, err := ParseMinuteOfDay(t.EndTime)
    if err != nil {
        return fmt.Errorf("end_time: %w", err)
    }
    if end <= start {
        return fmt.Errorf("end_time %q must be after start_time %q", t.EndTime, t.StartTime)
    }
    if t.SlotDuration <= 0 {
        return fmt.Errorf("slot_duration_minutes must be positive, got %d", t.SlotDuration)
    }
    if t.Capacity < 1 {
        return fmt.Errorf("capacity must be at least 1, got %d", t.Capacity)
    }
    return nil
}

// ParseMinuteOfDay converts an "HH:MM" string into minutes from midnight.
// Seconds and fractional parts appended by some clients are ignored.
func ParseMinuteOfDay(s string) (int, error) {
    if len(s) < 5 {
        return 0, fmt.Errorf("invalid time of day %q", s)
    }
    tod, err := time.Parse("15:04", s[:5])
    if err != nil {
        return 0, fmt.Errorf("invalid time of day %q", s)
    }
    return tod.Hour()*60 + tod.Minute(), nil
}
