// Package availability derives concrete bookable slots from recurring
// weekly templates and resolves them against the booking ledger's claims.
// Generation is a pure function of the template snapshot and an injected
// "now", so any number of concurrent readers may call it and tests can pin
// the clock.
package availability

import (
    "iter"
    "sort"
    "time"

    "github.com/mariia-hub/booking-engine/internal/model"
)

// Filter narrows generation to one location and/or service category.
// Empty fields match everything.
type Filter struct {
    Location        string
    ServiceCategory string
}

func (f Filter) matches(t *model.AvailabilityTemplate) bool {
    if f.Location != "" && f.Location != t.Location {
        return false
    }
    if f.ServiceCategory != "" && f.ServiceCategory != t.ServiceCategory {
        return false
    }
    return true
}

// Slots returns a restartable sequence of candidate slots generated from
// the template snapshot over [now, now+horizonDays), sorted by start time
// with ties broken by location then service category.  Days are expanded
// one at a time, so early termination does not pay for the whole horizon.
//
// A slot whose start is not strictly after now is dropped: there is no
// retroactive booking.  Disabled and malformed templates generate nothing.
// Overlapping templates each contribute their own candidate slots; when
// two templates for the same location and category produce the same slot
// key, the duplicate collapses into a single slot carrying the larger
// capacity and the smaller template ID.
func Slots(templates []model.AvailabilityTemplate, f Filter, now time.Time, horizonDays int) iter.Seq[model.Slot] {
    now = now.UTC()
    byWeekday := make(map[int][]model.AvailabilityTemplate)
    for _, t := range templates {
        if t.Disabled || !f.matches(&t) {
            continue
        }
        if t.Validate() != nil {
            continue
        }
        byWeekday[t.DayOfWeek] = append(byWeekday[t.DayOfWeek], t)
    }
    return func(yield func(model.Slot) bool) {
        day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
        for i := 0; i < horizonDays; i++ {
            batch := dailySlots(byWeekday[int(day.Weekday())], day, now)
            for _, s := range batch {
                if !yield(s) {
                    return
                }
            }
            day = day.AddDate(0, 0, 1)
        }
    }
}

// Generate materializes Slots into a slice.
func Generate(templates []model.AvailabilityTemplate, f Filter, now time.Time, horizonDays int) []model.Slot {
    var out []model.Slot
    for s := range Slots(templates, f, now, horizonDays) {
        out = append(out, s)
    }
    return out
}

// dailySlots expands the given templates for one calendar day, deduplicates
// identical slot keys and returns the batch in deterministic order.
func dailySlots(templates []model.AvailabilityTemplate, day, now time.Time) []model.Slot {
    seen := make(map[model.SlotKey]int) // key -> index into batch
    var batch []model.Slot
    for _, t := range templates {
        start, _ := model.ParseMinuteOfDay(t.StartTime)
        end, _ := model.ParseMinuteOfDay(t.EndTime)
        dur := time.Duration(t.SlotDuration) * time.Minute
        for m := start; m+t.SlotDuration <= end; m += t.SlotDuration {
            startsAt := day.Add(time.Duration(m) * time.Minute)
            if !startsAt.After(now) {
                continue
            }
            key := model.SlotKey{
                Location:        t.Location,
                StartsAt:        startsAt,
                ServiceCategory: t.ServiceCategory,
            }
            if i, dup := seen[key]; dup {
                if t.Capacity > batch[i].Capacity {
                    batch[i].Capacity = t.Capacity
                }
                if t.ID < batch[i].TemplateID {
                    batch[i].TemplateID = t.ID
                }
                continue
            }
            seen[key] = len(batch)
            batch = append(batch, model.Slot{
                Key:        key,
                EndsAt:     startsAt.Add(dur),
                TemplateID: t.ID,
                Capacity:   t.Capacity,
            })
        }
    }
    sort.Slice(batch, func(i, j int) bool {
        a, b := batch[i].Key, batch[j].Key
        if !a.StartsAt.Equal(b.StartsAt) {
            return a.StartsAt.Before(b.StartsAt)
        }
        if a.Location != b.Location {
            return a.Location < b.Location
        }
        return a.ServiceCategory < b.ServiceCategory
    })
    return batch
}

// ResolveSlot reports whether the key denotes a slot some enabled template
// actually generates, evaluated against the given instant.  It returns the
// resolved slot (with its capacity) or nil when no template produces the
// key or the slot already started.
func ResolveSlot(templates []model.AvailabilityTemplate, key model.SlotKey, now time.Time) *model.Slot {
    if !key.StartsAt.After(now) {
        return nil
    }
    startsAt := key.StartsAt.UTC()
    minute := startsAt.Hour()*60 + startsAt.Minute()
    var resolved *model.Slot
    for _, t := range templates {
        if t.Disabled || t.Location != key.Location || t.ServiceCategory != key.ServiceCategory {
            continue
        }
        if t.DayOfWeek != int(startsAt.Weekday()) || t.Validate() != nil {
            continue
        }
        start, _ := model.ParseMinuteOfDay(t.StartTime)
        end, _ := model.ParseMinuteOfDay(t.EndTime)
        if minute < start || minute+t.SlotDuration > end || (minute-start)%t.SlotDuration != 0 {
            continue
        }
        if startsAt.Second() != 0 || startsAt.Nanosecond() != 0 {
            continue
        }
        if resolved == nil {
            resolved = &model.Slot{
                Key:        key,
                EndsAt:     startsAt.Add(time.Duration(t.SlotDuration) * time.Minute),
                TemplateID: t.ID,
                Capacity:   t.Capacity,
            }
            continue
        }
        if t.Capacity > resolved.Capacity {
            resolved.Capacity = t.Capacity
        }
        if t.ID < resolved.TemplateID {
            resolved.TemplateID = t.ID
        }
    }
    return resolved
}
