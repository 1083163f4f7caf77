package availability

import (
	"testing"
	"time"

	"github.com/mariia-hub/booking-engine/internal/model"
)

// fixedNow is a Monday.  Templates in these tests use day_of_week relative
// to it so generated dates are easy to reason about.
var fixedNow = time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC) // Monday 08:00 UTC

func mondayTemplate() model.AvailabilityTemplate {
	return model.AvailabilityTemplate{
		ID:              1,
		Location:        "harley-street",
		ServiceCategory: "massage",
		DayOfWeek:       1, // Monday
		StartTime:       "09:00",
		EndTime:         "10:00",
		SlotDuration:    30,
		Capacity:        1,
	}
}

func TestGenerate_ExpandsWindowIntoSlots(t *testing.T) {
	slots := Generate([]model.AvailabilityTemplate{mondayTemplate()}, Filter{}, fixedNow, 1)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots from a 09:00-10:00/30min window, got %d", len(slots))
	}
	want0 := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	want1 := time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC)
	if !slots[0].Key.StartsAt.Equal(want0) {
		t.Fatalf("first slot at %s, want %s", slots[0].Key.StartsAt, want0)
	}
	if !slots[1].Key.StartsAt.Equal(want1) {
		t.Fatalf("second slot at %s, want %s", slots[1].Key.StartsAt, want1)
	}
	if !slots[0].EndsAt.Equal(want1) {
		t.Fatalf("first slot ends at %s, want %s", slots[0].EndsAt, want1)
	}
}

func TestGenerate_NoRetroactiveSlots(t *testing.T) {
	// Asking at 09:30 sharp: the 09:00 slot started and the 09:30 slot
	// starts exactly now; neither may appear.
	now := time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC)
	slots := Generate([]model.AvailabilityTemplate{mondayTemplate()}, Filter{}, now, 1)
	if len(slots) != 0 {
		t.Fatalf("expected no slots at or before now, got %d", len(slots))
	}
}

func TestGenerate_PartialSlotAtWindowEndDropped(t *testing.T) {
	tpl := mondayTemplate()
	tpl.EndTime = "09:45" // room for one 30-minute slot, then a 15-minute remainder
	slots := Generate([]model.AvailabilityTemplate{tpl}, Filter{}, fixedNow, 1)
	if len(slots) != 1 {
		t.Fatalf("expected the 15-minute remainder to be dropped, got %d slots", len(slots))
	}
}

func TestGenerate_DisabledTemplateProducesNothing(t *testing.T) {
	tpl := mondayTemplate()
	tpl.Disabled = true
	if slots := Generate([]model.AvailabilityTemplate{tpl}, Filter{}, fixedNow, 7); len(slots) != 0 {
		t.Fatalf("disabled template generated %d slots", len(slots))
	}
}

func TestGenerate_MalformedTemplateSkipped(t *testing.T) {
	bad := mondayTemplate()
	bad.EndTime = "08:00" // ends before it starts
	good := mondayTemplate()
	good.ID = 2
	slots := Generate([]model.AvailabilityTemplate{bad, good}, Filter{}, fixedNow, 1)
	if len(slots) != 2 {
		t.Fatalf("expected only the valid template's 2 slots, got %d", len(slots))
	}
}

func TestGenerate_OverlappingTemplatesCollapseDuplicateKeys(t *testing.T) {
	a := mondayTemplate()
	b := mondayTemplate()
	b.ID = 2
	b.Capacity = 3
	slots := Generate([]model.AvailabilityTemplate{a, b}, Filter{}, fixedNow, 1)
	if len(slots) != 2 {
		t.Fatalf("duplicate keys must collapse, got %d slots", len(slots))
	}
	if slots[0].Capacity != 3 {
		t.Fatalf("collapsed slot capacity = %d, want the larger 3", slots[0].Capacity)
	}
	if slots[0].TemplateID != 1 {
		t.Fatalf("collapsed slot template = %d, want the smaller 1", slots[0].TemplateID)
	}
}

func TestGenerate_OrderedByStartThenLocationThenCategory(t *testing.T) {
	a := mondayTemplate()
	b := mondayTemplate()
	b.ID = 2
	b.Location = "baker-street"
	slots := Generate([]model.AvailabilityTemplate{a, b}, Filter{}, fixedNow, 1)
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(slots))
	}
	for i := 1; i < len(slots); i++ {
		prev, cur := slots[i-1], slots[i]
		if cur.Key.StartsAt.Before(prev.Key.StartsAt) {
			t.Fatalf("slots out of time order at %d", i)
		}
		if cur.Key.StartsAt.Equal(prev.Key.StartsAt) && cur.Key.Location < prev.Key.Location {
			t.Fatalf("slots out of location order at %d", i)
		}
	}
}

func TestGenerate_FilterNarrowsByLocationAndCategory(t *testing.T) {
	a := mondayTemplate()
	b := mondayTemplate()
	b.ID = 2
	b.Location = "baker-street"
	slots := Generate([]model.AvailabilityTemplate{a, b}, Filter{Location: "baker-street"}, fixedNow, 1)
	if len(slots) != 2 {
		t.Fatalf("expected 2 filtered slots, got %d", len(slots))
	}
	for _, s := range slots {
		if s.Key.Location != "baker-street" {
			t.Fatalf("filter leaked location %q", s.Key.Location)
		}
	}
}

func TestGenerate_HorizonBoundsGeneration(t *testing.T) {
	// Horizon of 7 days starting Monday covers exactly one Monday.
	slots := Generate([]model.AvailabilityTemplate{mondayTemplate()}, Filter{}, fixedNow, 7)
	if len(slots) != 2 {
		t.Fatalf("expected one Monday's 2 slots in a 7-day horizon, got %d", len(slots))
	}
	// 8 days covers the next Monday too.
	slots = Generate([]model.AvailabilityTemplate{mondayTemplate()}, Filter{}, fixedNow, 8)
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots in an 8-day horizon, got %d", len(slots))
	}
}

func TestSlots_EarlyTerminationIsCheap(t *testing.T) {
	// Pulling one slot from a long horizon must not materialize the rest.
	seq := Slots([]model.AvailabilityTemplate{mondayTemplate()}, Filter{}, fixedNow, 365)
	var got []model.Slot
	for s := range seq {
		got = append(got, s)
		break
	}
	if len(got) != 1 {
		t.Fatalf("expected a single slot, got %d", len(got))
	}
	// The sequence is restartable: a second full pass sees everything.
	count := 0
	for range seq {
		count++
	}
	if count < 100 {
		t.Fatalf("restarted sequence yielded only %d slots", count)
	}
}

func TestResolveSlot_AcceptsAlignedKey(t *testing.T) {
	key := model.SlotKey{
		Location:        "harley-street",
		StartsAt:        time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC),
		ServiceCategory: "massage",
	}
	s := ResolveSlot([]model.AvailabilityTemplate{mondayTemplate()}, key, fixedNow)
	if s == nil {
		t.Fatalf("aligned key did not resolve")
	}
	if s.Capacity != 1 || s.TemplateID != 1 {
		t.Fatalf("resolved slot = %+v", s)
	}
}

func TestResolveSlot_RejectsFabricatedKeys(t *testing.T) {
	tpl := mondayTemplate()
	base := model.SlotKey{Location: "harley-street", ServiceCategory: "massage"}

	cases := []struct {
		name     string
		startsAt time.Time
	}{
		{"misaligned minute", time.Date(2025, 3, 3, 9, 10, 0, 0, time.UTC)},
		{"before window", time.Date(2025, 3, 3, 8, 30, 0, 0, time.UTC)},
		{"spills past window end", time.Date(2025, 3, 3, 9, 45, 0, 0, time.UTC)},
		{"wrong weekday", time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)},
		{"non-zero seconds", time.Date(2025, 3, 3, 9, 0, 30, 0, time.UTC)},
	}
	for _, tc := range cases {
		key := base
		key.StartsAt = tc.startsAt
		if s := ResolveSlot([]model.AvailabilityTemplate{tpl}, key, fixedNow); s != nil {
			t.Fatalf("%s: fabricated key resolved to %+v", tc.name, s)
		}
	}
}

func TestResolveSlot_PastKeyDoesNotResolve(t *testing.T) {
	key := model.SlotKey{
		Location:        "harley-street",
		StartsAt:        time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
		ServiceCategory: "massage",
	}
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC) // exactly at start
	if s := ResolveSlot([]model.AvailabilityTemplate{mondayTemplate()}, key, now); s != nil {
		t.Fatalf("slot starting exactly now resolved to %+v", s)
	}
}
