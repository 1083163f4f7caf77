package ledger

import (
    "context"
    "crypto/rand"
    "encoding/hex"
    "errors"
    "log"
    "time"

    "github.com/google/uuid"

    "github.com/mariia-hub/booking-engine/internal/model"
    "github.com/mariia-hub/booking-engine/internal/queue"
    "github.com/mariia-hub/booking-engine/internal/repository"
)

// Store is the durable storage the ledger drives.  Implementations must
// make ClaimSlot and RescheduleSwap atomic per slot key at the storage
// layer — the serialization must survive process restarts, or a second
// instance reintroduces double-booking.  Claim methods report ok=false,
// without side effects, when the slot is at capacity.  Lookups return
// repository.ErrNotFound for missing rows.
type Store interface {
    ClaimSlot(ctx context.Context, b *model.Booking, capacity int) (bool, error)
    RescheduleSwap(ctx context.Context, old, nb *model.Booking, capacity int) (bool, error)
    GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error)
    GetByToken(ctx context.Context, token string) (*model.Booking, error)
    SetStatus(ctx context.Context, id uuid.UUID, status model.BookingStatus) error
    SetExternalRef(ctx context.Context, id uuid.UUID, ref string) error
}

// SlotResolver validates that a slot key is one some enabled template
// actually generates, and supplies its capacity.  nil means no such slot.
type SlotResolver interface {
    ResolveSlot(ctx context.Context, key model.SlotKey, now time.Time) (*model.Slot, error)
}

// EventSink receives one event per committed mutation.  Publish failures
// must not fail the mutation; the ledger logs and moves on.
type EventSink interface {
    Publish(ctx context.Context, event queue.BookingMutated) error
}

// Invalidator drops cached availability answers after a mutation so the
// resolver's read-after-write guarantee extends through the cache.
type Invalidator interface {
    Invalidate(ctx context.Context)
}

// Ledger implements the reservation, reschedule, cancellation and status
// transition operations.  Reserve and Reschedule are the only points in
// the system requiring mutual exclusion; the Store serializes them per
// slot key so unrelated slots never contend.
type Ledger struct {
    store      Store
    slots      SlotResolver
    events     EventSink
    cache      Invalidator
    now        func() time.Time
    claimWait  time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
    return func(l *Ledger) { l.now = now }
}

// WithEventSink attaches a mutation event publisher.
func WithEventSink(sink EventSink) Option {
    return func(l *Ledger) { l.events = sink }
}

// WithInvalidator attaches an availability cache invalidation hook.
func WithInvalidator(inv Invalidator) Option {
    return func(l *Ledger) { l.cache = inv }
}

// WithClaimWait bounds how long a Reserve waits for its per-slot
// serialization before failing with a retryable ErrSlotUnavailable.
func WithClaimWait(d time.Duration) Option {
    return func(l *Ledger) {
        if d > 0 {
            l.claimWait = d
        }
    }
}

// New constructs a Ledger over the given store and slot resolver.
func New(store Store, slots SlotResolver, opts ...Option) *Ledger {
    l := &Ledger{
        store:     store,
        slots:     slots,
        now:       time.Now,
        claimWait: 3 * time.Second,
    }
    for _, opt := range opts {
        opt(l)
    }
    return l
}

// ReserveOptions carries the non-essential parameters of a reservation.
type ReserveOptions struct {
    // Confirmed starts the booking in confirmed rather than pending, for
    // flows without a separate confirmation step.
    Confirmed bool
    // Source records which system originated the claim; zero value means
    // local.  The sync engine reserves with SourceExternal when adopting
    // an external booking.
    Source model.BookingSource
    // ExternalRef is the external platform's reference, set only together
    // with SourceExternal.
    ExternalRef *string
    // OriginDevice, when known, is excluded from the notification fan-out
    // for this mutation.
    OriginDevice *uuid.UUID
}

// Reserve atomically claims the slot for the customer.  It fails with
// ErrSlotInPast for slots not strictly in the future, ErrSlotUnavailable
// when no template generates the key or the claim loses the race, and
// ErrCapacityExceeded when a multi-place slot is fully booked.  On failure
// the caller should re-query availability; the ledger never substitutes a
// different slot.
func (l *Ledger) Reserve(ctx context.Context, key model.SlotKey, customerID string, opts ReserveOptions) (*model.Booking, error) {
    now := l.now().UTC()
    if !key.StartsAt.After(now) {
        return nil, ErrSlotInPast
    }
    slot, err := l.slots.ResolveSlot(ctx, key, now)
    if err != nil {
        return nil, err
    }
    if slot == nil {
        return nil, ErrSlotUnavailable
    }

    token, err := newRescheduleToken()
    if err != nil {
        return nil, err
    }
    status := model.StatusPending
    if opts.Confirmed {
        status = model.StatusConfirmed
    }
    source := opts.Source
    if source == "" {
        source = model.SourceLocal
    }
    b := &model.Booking{
        ID:              uuid.New(),
        Slot:            key,
        EndsAt:          slot.EndsAt,
        TemplateID:      slot.TemplateID,
        CustomerID:      customerID,
        Status:          status,
        Source:          source,
        ExternalRef:     opts.ExternalRef,
        RescheduleToken: token,
    }

    claimCtx, cancel := context.WithTimeout(ctx, l.claimWait)
    defer cancel()
    ok, err := l.store.ClaimSlot(claimCtx, b, slot.Capacity)
    if err != nil {
        if errors.Is(err, context.DeadlineExceeded) {
            // The per-slot lock could not be acquired within the bounded
            // wait; surface as retryable rather than queuing indefinitely.
            return nil, ErrSlotUnavailable
        }
        return nil, err
    }
    if !ok {
        if slot.Capacity > 1 {
            return nil, ErrCapacityExceeded
        }
        return nil, ErrSlotUnavailable
    }

    l.committed(ctx, queue.MutationReserve, b, opts.OriginDevice)
    return b, nil
}

// Reschedule moves the booking identified by the token onto a new slot.
// The new slot is claimed under the same rule as Reserve and only then is
// the old booking cancelled, in the same storage transaction; a failed
// claim leaves the old booking untouched.  The new booking keeps the
// customer and inherits a confirmed status, and carries a fresh token.
func (l *Ledger) Reschedule(ctx context.Context, token string, newKey model.SlotKey, originDevice *uuid.UUID) (*model.Booking, error) {
    old, err := l.byToken(ctx, token)
    if err != nil {
        return nil, err
    }
    now := l.now().UTC()
    if !newKey.StartsAt.After(now) {
        return nil, ErrSlotInPast
    }
    slot, err := l.slots.ResolveSlot(ctx, newKey, now)
    if err != nil {
        return nil, err
    }
    if slot == nil {
        return nil, ErrSlotUnavailable
    }

    newToken, err := newRescheduleToken()
    if err != nil {
        return nil, err
    }
    status := model.StatusPending
    if old.Status == model.StatusConfirmed {
        status = model.StatusConfirmed
    }
    nb := &model.Booking{
        ID:              uuid.New(),
        Slot:            newKey,
        EndsAt:          slot.EndsAt,
        TemplateID:      slot.TemplateID,
        CustomerID:      old.CustomerID,
        Status:          status,
        Source:          old.Source,
        RescheduleToken: newToken,
    }

    claimCtx, cancel := context.WithTimeout(ctx, l.claimWait)
    defer cancel()
    ok, err := l.store.RescheduleSwap(claimCtx, old, nb, slot.Capacity)
    if err != nil {
        if errors.Is(err, context.DeadlineExceeded) {
            return nil, ErrSlotUnavailable
        }
        return nil, err
    }
    if !ok {
        if slot.Capacity > 1 {
            return nil, ErrCapacityExceeded
        }
        return nil, ErrSlotUnavailable
    }

    l.committed(ctx, queue.MutationReschedule, nb, originDevice)
    return nb, nil
}

// CancelByToken cancels the booking identified by its reschedule token.
// Cancelling an already-cancelled booking returns the current state
// without error.
func (l *Ledger) CancelByToken(ctx context.Context, token string, originDevice *uuid.UUID) (*model.Booking, error) {
    b, err := l.store.GetByToken(ctx, token)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return nil, ErrInvalidToken
        }
        return nil, err
    }
    return l.cancel(ctx, b, originDevice)
}

// CancelByID cancels a booking by its identifier.  Used by the
// administrative surface and by the sync engine when applying a
// prefer-external resolution.
func (l *Ledger) CancelByID(ctx context.Context, id uuid.UUID, originDevice *uuid.UUID) (*model.Booking, error) {
    b, err := l.store.GetByID(ctx, id)
    if err != nil {
        return nil, err
    }
    return l.cancel(ctx, b, originDevice)
}

func (l *Ledger) cancel(ctx context.Context, b *model.Booking, originDevice *uuid.UUID) (*model.Booking, error) {
    if b.Status == model.StatusCancelled {
        return b, nil // idempotent
    }
    if !b.CanTransition(model.StatusCancelled) {
        return nil, ErrInvalidTransition
    }
    if err := l.store.SetStatus(ctx, b.ID, model.StatusCancelled); err != nil {
        return nil, err
    }
    updated, err := l.store.GetByID(ctx, b.ID)
    if err != nil {
        return nil, err
    }
    l.committed(ctx, queue.MutationCancel, updated, originDevice)
    return updated, nil
}

// Confirm moves a pending booking forward to confirmed.
func (l *Ledger) Confirm(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
    return l.transition(ctx, id, model.StatusConfirmed, queue.MutationConfirm)
}

// Complete moves a confirmed booking forward to completed, its terminal
// success state.
func (l *Ledger) Complete(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
    return l.transition(ctx, id, model.StatusCompleted, queue.MutationComplete)
}

func (l *Ledger) transition(ctx context.Context, id uuid.UUID, next model.BookingStatus, kind string) (*model.Booking, error) {
    b, err := l.store.GetByID(ctx, id)
    if err != nil {
        return nil, err
    }
    if !b.CanTransition(next) {
        return nil, ErrInvalidTransition
    }
    if err := l.store.SetStatus(ctx, id, next); err != nil {
        return nil, err
    }
    updated, err := l.store.GetByID(ctx, id)
    if err != nil {
        return nil, err
    }
    l.committed(ctx, kind, updated, nil)
    return updated, nil
}

// LinkExternal stamps the external platform's reference onto a booking.
// The sync engine calls this when it matches a local booking with its
// external counterpart; it is not a lifecycle mutation and emits no event.
func (l *Ledger) LinkExternal(ctx context.Context, id uuid.UUID, ref string) error {
    return l.store.SetExternalRef(ctx, id, ref)
}

// Lookup fetches a booking by ID through the ledger's store.
func (l *Ledger) Lookup(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
    return l.store.GetByID(ctx, id)
}

func (l *Ledger) byToken(ctx context.Context, token string) (*model.Booking, error) {
    b, err := l.store.GetByToken(ctx, token)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return nil, ErrInvalidToken
        }
        return nil, err
    }
    // A token on a terminal booking authorizes nothing further.
    if b.Status == model.StatusCancelled || b.Status == model.StatusCompleted {
        return nil, ErrInvalidToken
    }
    return b, nil
}

// committed runs the post-commit hooks for a mutation: cache invalidation
// first so no stale availability outlives the commit, then the event that
// fans out to devices and triggers incremental sync.
func (l *Ledger) committed(ctx context.Context, kind string, b *model.Booking, originDevice *uuid.UUID) {
    if l.cache != nil {
        l.cache.Invalidate(ctx)
    }
    if l.events == nil {
        return
    }
    event := queue.BookingMutated{
        MutationKind:   kind,
        Booking:        *b,
        AffectedUserID: b.CustomerID,
        OriginDevice:   originDevice,
        OccurredAt:     l.now().UTC(),
    }
    event.Booking.RescheduleToken = "" // never broadcast the token
    if err := l.events.Publish(ctx, event); err != nil {
        log.Printf("ledger: publish %s event for booking %s failed: %v", kind, b.ID, err)
    }
}

// newRescheduleToken generates the opaque, unguessable token that
// authorizes reschedule and cancel for one booking.  32 random bytes in
// hex; possession of the token is the authorization mechanism.
func newRescheduleToken() (string, error) {
    buf := make([]byte, 32)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
