package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mariia-hub/booking-engine/internal/model"
)

// fakeTemplates serves a fixed snapshot, optionally failing.
type fakeTemplates struct {
	templates []model.AvailabilityTemplate
	err       error
}

func (f *fakeTemplates) List(_ context.Context, location, category string, _ bool) ([]model.AvailabilityTemplate, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.AvailabilityTemplate
	for _, t := range f.templates {
		if location != "" && t.Location != location {
			continue
		}
		if category != "" && t.ServiceCategory != category {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// fakeCounts serves claim counts keyed by slot, optionally failing.
type fakeCounts struct {
	counts map[model.SlotKey]int
	err    error
}

func (f *fakeCounts) ActiveCounts(context.Context, time.Time, time.Time) (map[model.SlotKey]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.counts, nil
}

func keyAt(h, m int) model.SlotKey {
	return model.SlotKey{
		Location:        "harley-street",
		StartsAt:        time.Date(2025, 3, 3, h, m, 0, 0, time.UTC),
		ServiceCategory: "massage",
	}
}

func TestListAvailable_SubtractsClaimedSlots(t *testing.T) {
	r := NewResolver(
		&fakeTemplates{templates: []model.AvailabilityTemplate{mondayTemplate()}},
		&fakeCounts{counts: map[model.SlotKey]int{keyAt(9, 0): 1}},
		func() time.Time { return fixedNow },
	)
	slots, err := r.ListAvailable(context.Background(), Query{HorizonDays: 1})
	if err != nil {
		t.Fatalf("ListAvailable: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected 1 free slot, got %d", len(slots))
	}
	if !slots[0].Key.StartsAt.Equal(keyAt(9, 30).StartsAt) {
		t.Fatalf("wrong surviving slot: %s", slots[0].Key.StartsAt)
	}
}

func TestListAvailable_MultiCapacitySlotStaysUntilFull(t *testing.T) {
	tpl := mondayTemplate()
	tpl.Capacity = 2
	counts := map[model.SlotKey]int{keyAt(9, 0): 1}
	r := NewResolver(
		&fakeTemplates{templates: []model.AvailabilityTemplate{tpl}},
		&fakeCounts{counts: counts},
		func() time.Time { return fixedNow },
	)
	slots, err := r.ListAvailable(context.Background(), Query{HorizonDays: 1})
	if err != nil {
		t.Fatalf("ListAvailable: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("one of two places claimed must keep the slot listed, got %d slots", len(slots))
	}

	counts[keyAt(9, 0)] = 2
	slots, err = r.ListAvailable(context.Background(), Query{HorizonDays: 1})
	if err != nil {
		t.Fatalf("ListAvailable: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("fully claimed slot must disappear, got %d slots", len(slots))
	}
}

func TestListAvailable_LimitCapsResult(t *testing.T) {
	r := NewResolver(
		&fakeTemplates{templates: []model.AvailabilityTemplate{mondayTemplate()}},
		&fakeCounts{},
		func() time.Time { return fixedNow },
	)
	slots, err := r.ListAvailable(context.Background(), Query{HorizonDays: 8, Limit: 3})
	if err != nil {
		t.Fatalf("ListAvailable: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("limit ignored: got %d slots", len(slots))
	}
}

func TestListAvailable_UpstreamFailureIsErrUnavailable(t *testing.T) {
	boom := errors.New("connection refused")

	r := NewResolver(&fakeTemplates{err: boom}, &fakeCounts{}, func() time.Time { return fixedNow })
	if _, err := r.ListAvailable(context.Background(), Query{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("template failure: got %v, want ErrUnavailable", err)
	}

	r = NewResolver(
		&fakeTemplates{templates: []model.AvailabilityTemplate{mondayTemplate()}},
		&fakeCounts{err: boom},
		func() time.Time { return fixedNow },
	)
	if _, err := r.ListAvailable(context.Background(), Query{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("ledger failure: got %v, want ErrUnavailable", err)
	}
}

func TestResolverResolveSlot_UsesCurrentSnapshot(t *testing.T) {
	src := &fakeTemplates{templates: []model.AvailabilityTemplate{mondayTemplate()}}
	r := NewResolver(src, &fakeCounts{}, func() time.Time { return fixedNow })

	s, err := r.ResolveSlot(context.Background(), keyAt(9, 0), fixedNow)
	if err != nil {
		t.Fatalf("ResolveSlot: %v", err)
	}
	if s == nil {
		t.Fatalf("valid key did not resolve")
	}

	// Disabling the template takes effect on the next resolution.
	src.templates[0].Disabled = true
	s, err = r.ResolveSlot(context.Background(), keyAt(9, 0), fixedNow)
	if err != nil {
		t.Fatalf("ResolveSlot: %v", err)
	}
	if s != nil {
		t.Fatalf("disabled template still resolved %+v", s)
	}
}
