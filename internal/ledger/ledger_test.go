package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mariia-hub/booking-engine/internal/model"
	"github.com/mariia-hub/booking-engine/internal/queue"
	"github.com/mariia-hub/booking-engine/internal/repository"
)

var testNow = time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)

func slotAt(h, m int) model.SlotKey {
	return model.SlotKey{
		Location:        "harley-street",
		StartsAt:        time.Date(2025, 3, 3, h, m, 0, 0, time.UTC),
		ServiceCategory: "massage",
	}
}

// memStore is an in-memory Store.  A single mutex serializes claims, which
// is the same guarantee the MySQL slot locks give per key, just coarser.
type memStore struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*model.Booking
}

func newMemStore() *memStore {
	return &memStore{bookings: make(map[uuid.UUID]*model.Booking)}
}

func (s *memStore) activeCountLocked(key model.SlotKey) int {
	n := 0
	for _, b := range s.bookings {
		if b.Slot.String() == key.String() && b.Active() {
			n++
		}
	}
	return n
}

func (s *memStore) ClaimSlot(_ context.Context, b *model.Booking, capacity int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeCountLocked(b.Slot) >= capacity {
		return false, nil
	}
	cp := *b
	cp.CreatedAt = testNow
	cp.UpdatedAt = testNow
	s.bookings[cp.ID] = &cp
	*b = cp
	return true, nil
}

func (s *memStore) RescheduleSwap(_ context.Context, old, nb *model.Booking, capacity int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeCountLocked(nb.Slot) >= capacity {
		return false, nil
	}
	cp := *nb
	s.bookings[cp.ID] = &cp
	*nb = cp
	prev := s.bookings[old.ID]
	prev.Status = model.StatusCancelled
	at := testNow
	prev.CancelledAt = &at
	to := nb.ID
	prev.RescheduledTo = &to
	return true, nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *memStore) GetByToken(_ context.Context, token string) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.RescheduleToken == token {
			cp := *b
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) SetStatus(_ context.Context, id uuid.UUID, status model.BookingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.Status = status
	if status == model.StatusCancelled {
		at := testNow
		b.CancelledAt = &at
	}
	return nil
}

func (s *memStore) SetExternalRef(_ context.Context, id uuid.UUID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.ExternalRef = &ref
	return nil
}

// fakeSlots resolves a fixed set of slot keys.
type fakeSlots struct {
	slots map[string]model.Slot
}

func newFakeSlots(capacity int, keys ...model.SlotKey) *fakeSlots {
	f := &fakeSlots{slots: make(map[string]model.Slot)}
	for _, k := range keys {
		f.slots[k.String()] = model.Slot{
			Key:        k,
			EndsAt:     k.StartsAt.Add(30 * time.Minute),
			TemplateID: 1,
			Capacity:   capacity,
		}
	}
	return f
}

func (f *fakeSlots) ResolveSlot(_ context.Context, key model.SlotKey, now time.Time) (*model.Slot, error) {
	if !key.StartsAt.After(now) {
		return nil, nil
	}
	s, ok := f.slots[key.String()]
	if !ok {
		return nil, nil
	}
	cp := s
	return &cp, nil
}

// recordSink collects published events.
type recordSink struct {
	mu     sync.Mutex
	events []queue.BookingMutated
}

func (r *recordSink) Publish(_ context.Context, ev queue.BookingMutated) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordSink) all() []queue.BookingMutated {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]queue.BookingMutated(nil), r.events...)
}

// countInvalidator counts cache flushes.
type countInvalidator struct{ n int }

func (c *countInvalidator) Invalidate(context.Context) { c.n++ }

func newTestLedger(capacity int, keys ...model.SlotKey) (*Ledger, *memStore, *recordSink, *countInvalidator) {
	store := newMemStore()
	sink := &recordSink{}
	inv := &countInvalidator{}
	l := New(store, newFakeSlots(capacity, keys...),
		WithClock(func() time.Time { return testNow }),
		WithEventSink(sink),
		WithInvalidator(inv),
	)
	return l, store, sink, inv
}

func TestReserve_ClaimsSlot(t *testing.T) {
	l, _, sink, inv := newTestLedger(1, slotAt(9, 0))

	b, err := l.Reserve(context.Background(), slotAt(9, 0), "cust-1", ReserveOptions{})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if b.Status != model.StatusPending {
		t.Fatalf("status = %s, want pending", b.Status)
	}
	if len(b.RescheduleToken) != 64 {
		t.Fatalf("token length = %d, want 64 hex chars", len(b.RescheduleToken))
	}
	if !b.EndsAt.Equal(slotAt(9, 30).StartsAt) {
		t.Fatalf("ends_at = %s", b.EndsAt)
	}
	events := sink.all()
	if len(events) != 1 || events[0].MutationKind != queue.MutationReserve {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Booking.RescheduleToken != "" {
		t.Fatalf("event leaked the reschedule token")
	}
	if inv.n != 1 {
		t.Fatalf("cache invalidated %d times, want 1", inv.n)
	}
}

func TestReserve_ConfirmedOptIn(t *testing.T) {
	l, _, _, _ := newTestLedger(1, slotAt(9, 0))
	b, err := l.Reserve(context.Background(), slotAt(9, 0), "cust-1", ReserveOptions{Confirmed: true})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if b.Status != model.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", b.Status)
	}
}

func TestReserve_UnknownKeyUnavailable(t *testing.T) {
	l, _, _, _ := newTestLedger(1, slotAt(9, 0))
	_, err := l.Reserve(context.Background(), slotAt(11, 0), "cust-1", ReserveOptions{})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("got %v, want ErrSlotUnavailable", err)
	}
}

func TestReserve_PastSlotRejected(t *testing.T) {
	l, _, _, _ := newTestLedger(1, slotAt(9, 0))
	past := slotAt(9, 0)
	past.StartsAt = testNow.Add(-time.Hour)
	_, err := l.Reserve(context.Background(), past, "cust-1", ReserveOptions{})
	if !errors.Is(err, ErrSlotInPast) {
		t.Fatalf("got %v, want ErrSlotInPast", err)
	}
}

func TestReserve_SingleCapacityDoubleBooking(t *testing.T) {
	l, _, _, _ := newTestLedger(1, slotAt(9, 0))
	ctx := context.Background()

	if _, err := l.Reserve(ctx, slotAt(9, 0), "cust-1", ReserveOptions{}); err != nil {
		t.Fatalf("first Reserve: %v", err)
	}
	_, err := l.Reserve(ctx, slotAt(9, 0), "cust-2", ReserveOptions{})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("got %v, want ErrSlotUnavailable", err)
	}
	if errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("single-place slot must not report capacity_exceeded")
	}
	if !Retryable(err) {
		t.Fatalf("losing a claim race must be retryable")
	}
}

func TestReserve_ConcurrentClaimsRespectCapacity(t *testing.T) {
	const capacity, contenders = 2, 8
	l, store, sink, _ := newTestLedger(capacity, slotAt(9, 0))
	ctx := context.Background()

	errs := make(chan error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Reserve(ctx, slotAt(9, 0), uuid.NewString(), ReserveOptions{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	won, lost := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrCapacityExceeded):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != capacity {
		t.Fatalf("%d claims won, want exactly %d", won, capacity)
	}
	if lost != contenders-capacity {
		t.Fatalf("%d claims lost, want %d", lost, contenders-capacity)
	}
	store.mu.Lock()
	active := store.activeCountLocked(slotAt(9, 0))
	store.mu.Unlock()
	if active != capacity {
		t.Fatalf("%d active bookings persisted, want %d", active, capacity)
	}
	if got := len(sink.all()); got != capacity {
		t.Fatalf("%d events published, want one per successful claim (%d)", got, capacity)
	}
}

func TestReschedule_MovesBookingAtomically(t *testing.T) {
	l, _, sink, _ := newTestLedger(1, slotAt(9, 0), slotAt(10, 0))
	ctx := context.Background()

	orig, err := l.Reserve(ctx, slotAt(9, 0), "cust-1", ReserveOptions{})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	moved, err := l.Reschedule(ctx, orig.RescheduleToken, slotAt(10, 0), nil)
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if moved.Slot.String() != slotAt(10, 0).String() {
		t.Fatalf("moved to %s", moved.Slot)
	}
	if moved.RescheduleToken == orig.RescheduleToken {
		t.Fatalf("reschedule must mint a fresh token")
	}
	old, err := l.Lookup(ctx, orig.ID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if old.Status != model.StatusCancelled {
		t.Fatalf("old booking status = %s, want cancelled", old.Status)
	}
	if old.RescheduledTo == nil || *old.RescheduledTo != moved.ID {
		t.Fatalf("old booking not linked to its replacement")
	}
	// Freed slot is claimable again.
	if _, err := l.Reserve(ctx, slotAt(9, 0), "cust-2", ReserveOptions{}); err != nil {
		t.Fatalf("freed slot not claimable: %v", err)
	}
	kinds := []string{}
	for _, ev := range sink.all() {
		kinds = append(kinds, ev.MutationKind)
	}
	if len(kinds) != 3 || kinds[1] != queue.MutationReschedule {
		t.Fatalf("event kinds = %v", kinds)
	}
}

func TestReschedule_FailedClaimLeavesOriginalUntouched(t *testing.T) {
	l, _, _, _ := newTestLedger(1, slotAt(9, 0), slotAt(10, 0))
	ctx := context.Background()

	orig, err := l.Reserve(ctx, slotAt(9, 0), "cust-1", ReserveOptions{})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := l.Reserve(ctx, slotAt(10, 0), "cust-2", ReserveOptions{}); err != nil {
		t.Fatalf("Reserve blocker: %v", err)
	}

	_, err = l.Reschedule(ctx, orig.RescheduleToken, slotAt(10, 0), nil)
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("got %v, want ErrSlotUnavailable", err)
	}
	still, err := l.Lookup(ctx, orig.ID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if still.Status != model.StatusPending {
		t.Fatalf("failed reschedule mutated the original: %s", still.Status)
	}
	// The original token still works.
	if _, err := l.CancelByToken(ctx, orig.RescheduleToken, nil); err != nil {
		t.Fatalf("original token dead after failed reschedule: %v", err)
	}
}

func TestReschedule_InheritsConfirmedStatus(t *testing.T) {
	l, _, _, _ := newTestLedger(1, slotAt(9, 0), slotAt(10, 0))
	ctx := context.Background()

	orig, err := l.Reserve(ctx, slotAt(9, 0), "cust-1", ReserveOptions{Confirmed: true})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	moved, err := l.Reschedule(ctx, orig.RescheduleToken, slotAt(10, 0), nil)
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if moved.Status != model.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed carried over", moved.Status)
	}
}

func TestReschedule_BadTokenRejected(t *testing.T) {
	l, _, _, _ := newTestLedger(1, slotAt(9, 0), slotAt(10, 0))
	ctx := context.Background()

	if _, err := l.Reschedule(ctx, "nonsense", slotAt(10, 0), nil); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("unknown token: got %v, want ErrInvalidToken", err)
	}

	// A token on a cancelled booking authorizes nothing.
	orig, err := l.Reserve(ctx, slotAt(9, 0), "cust-1", ReserveOptions{})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := l.CancelByToken(ctx, orig.RescheduleToken, nil); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := l.Reschedule(ctx, orig.RescheduleToken, slotAt(10, 0), nil); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("dead token: got %v, want ErrInvalidToken", err)
	}
}

func TestCancel_IdempotentAndReleasing(t *testing.T) {
	l, _, sink, _ := newTestLedger(1, slotAt(9, 0))
	ctx := context.Background()

	b, err := l.Reserve(ctx, slotAt(9, 0), "cust-1", ReserveOptions{})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	first, err := l.CancelByToken(ctx, b.RescheduleToken, nil)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if first.Status != model.StatusCancelled || first.CancelledAt == nil {
		t.Fatalf("cancelled booking = %+v", first)
	}
	// Second cancel (by ID, since the token is now dead) is a no-op.
	second, err := l.CancelByID(ctx, b.ID, nil)
	if err != nil {
		t.Fatalf("repeat Cancel: %v", err)
	}
	if second.Status != model.StatusCancelled {
		t.Fatalf("repeat cancel status = %s", second.Status)
	}
	if got := len(sink.all()); got != 2 {
		t.Fatalf("%d events, want 2 (reserve + one cancel)", got)
	}
	// Cancelled bookings release capacity.
	if _, err := l.Reserve(ctx, slotAt(9, 0), "cust-2", ReserveOptions{}); err != nil {
		t.Fatalf("slot not released by cancel: %v", err)
	}
}

func TestCancel_CompletedBookingRejected(t *testing.T) {
	l, _, _, _ := newTestLedger(1, slotAt(9, 0))
	ctx := context.Background()

	b, err := l.Reserve(ctx, slotAt(9, 0), "cust-1", ReserveOptions{Confirmed: true})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := l.Complete(ctx, b.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := l.CancelByID(ctx, b.ID, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
}

func TestTransitions_FollowStateMachine(t *testing.T) {
	l, _, _, _ := newTestLedger(1, slotAt(9, 0))
	ctx := context.Background()

	b, err := l.Reserve(ctx, slotAt(9, 0), "cust-1", ReserveOptions{})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	// pending -> completed is not a legal jump.
	if _, err := l.Complete(ctx, b.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending->completed: got %v, want ErrInvalidTransition", err)
	}
	if _, err := l.Confirm(ctx, b.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	// confirmed -> confirmed is not a transition.
	if _, err := l.Confirm(ctx, b.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("repeat confirm: got %v, want ErrInvalidTransition", err)
	}
	if _, err := l.Complete(ctx, b.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := l.Confirm(ctx, b.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("completed->confirmed: got %v, want ErrInvalidTransition", err)
	}
}

func TestReserve_OriginDeviceCarriedInEvent(t *testing.T) {
	l, _, sink, _ := newTestLedger(1, slotAt(9, 0))
	device := uuid.New()

	if _, err := l.Reserve(context.Background(), slotAt(9, 0), "cust-1", ReserveOptions{OriginDevice: &device}); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	events := sink.all()
	if len(events) != 1 || events[0].OriginDevice == nil || *events[0].OriginDevice != device {
		t.Fatalf("origin device lost: %+v", events)
	}
}
