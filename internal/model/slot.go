package model

import (
    "fmt"
    "strings"
    "time"
)

// SlotKey identifies a bookable time slot.  Two slots are the same slot iff
// their location, start time and service category all match; the key is the
// unit of capacity enforcement and of reconciliation with the external
// platform.  StartsAt is always UTC.
type SlotKey struct {
    Location        string    `json:"location"`
    StartsAt        time.Time `json:"starts_at"`
    ServiceCategory string    `json:"service_category"`
}

// String renders the key in its canonical "location|RFC3339|category" form.
// The canonical form is used for cache keys, event payloads and logs.
func (k SlotKey) String() string {
    return k.Location + "|" + k.StartsAt.UTC().Format(time.RFC3339) + "|" + k.ServiceCategory
}

// ParseSlotKey parses the canonical form produced by SlotKey.String.
func ParseSlotKey(s string) (SlotKey, error) {
    parts := strings.SplitN(s, "|", 3)
    if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
        return SlotKey{}, fmt.Errorf("invalid slot key %q", s)
    }
    at, err := time.Parse(time.RFC3339, parts[1])
    if err != nil {
        return SlotKey{}, fmt.Errorf("invalid slot key %q: %w", s, err)
    }
    return SlotKey{Location: parts[0], StartsAt: at.UTC(), ServiceCategory: parts[2]}, nil
}

// Slot is a concrete bookable interval derived from a template and a
// calendar date.  Slots are recomputed on demand and never persisted; the
// booking ledger stores only the key of the slot a booking claims.
type Slot struct {
    Key        SlotKey   `json:"key"`
    EndsAt     time.Time `json:"ends_at"`
    TemplateID uint64    `json:"template_id"`
    Capacity   int       `json:"capacity"`
}
