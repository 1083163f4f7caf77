package availability

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/mariia-hub/booking-engine/internal/model"
)

// ErrUnavailable is returned when the resolver cannot produce a consistent
// answer because an upstream (template store or ledger) is unreachable.
// Partial results are never returned.
var ErrUnavailable = errors.New("availability unavailable")

// DefaultHorizonDays bounds generation when a query does not say otherwise.
const DefaultHorizonDays = 14

// TemplateSource supplies the current template snapshot.
type TemplateSource interface {
    List(ctx context.Context, location, category string, includeDisabled bool) ([]model.AvailabilityTemplate, error)
}

// ClaimCounter reports, per slot key, how many non-cancelled bookings the
// ledger currently holds for slots starting inside a time range.
type ClaimCounter interface {
    ActiveCounts(ctx context.Context, from, to time.Time) (map[model.SlotKey]int, error)
}

// Resolver computes the externally visible "free slots" view: generated
// slots minus slots whose capacity the ledger has already claimed.  It
// performs no writes and reads the ledger directly at query time, so a
// slot claimed a moment earlier never reappears as available.
type Resolver struct {
    templates TemplateSource
    claims    ClaimCounter
    now       func() time.Time
}

// NewResolver constructs a Resolver.  The clock is injectable for tests;
// pass nil for time.Now.
func NewResolver(templates TemplateSource, claims ClaimCounter, now func() time.Time) *Resolver {
    if now == nil {
        now = time.Now
    }
    return &Resolver{templates: templates, claims: claims, now: now}
}

// Query narrows and bounds a ListAvailable call.
type Query struct {
    Location        string
    ServiceCategory string
    HorizonDays     int
    Limit           int
}

// ListAvailable returns the free slots matching the query, ordered by
// start time, then location, then service category, so pagination is
// deterministic.  A slot is free while its active claim count is below its
// capacity.  Any upstream failure surfaces as ErrUnavailable.
func (r *Resolver) ListAvailable(ctx context.Context, q Query) ([]model.Slot, error) {
    horizon := q.HorizonDays
    if horizon <= 0 {
        horizon = DefaultHorizonDays
    }
    now := r.now().UTC()

    templates, err := r.templates.List(ctx, q.Location, q.ServiceCategory, false)
    if err != nil {
        return nil, fmt.Errorf("%w: templates: %v", ErrUnavailable, err)
    }
    to := now.AddDate(0, 0, horizon)
    counts, err := r.claims.ActiveCounts(ctx, now, to)
    if err != nil {
        return nil, fmt.Errorf("%w: ledger: %v", ErrUnavailable, err)
    }

    filter := Filter{Location: q.Location, ServiceCategory: q.ServiceCategory}
    var out []model.Slot
    for s := range Slots(templates, filter, now, horizon) {
        if counts[s.Key] >= s.Capacity {
            continue
        }
        out = append(out, s)
        if q.Limit > 0 && len(out) >= q.Limit {
            break
        }
    }
    return out, nil
}

// ResolveSlot validates a slot key against the current template snapshot
// on behalf of the ledger.  It returns nil (and no error) when no enabled
// template generates the key at the given instant.
func (r *Resolver) ResolveSlot(ctx context.Context, key model.SlotKey, now time.Time) (*model.Slot, error) {
    templates, err := r.templates.List(ctx, key.Location, key.ServiceCategory, false)
    if err != nil {
        return nil, fmt.Errorf("%w: templates: %v", ErrUnavailable, err)
    }
    return ResolveSlot(templates, key, now), nil
}
