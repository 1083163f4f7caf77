package extsync

import (
    "context"
    "errors"
    "fmt"
    "log"
    "time"

    "github.com/google/uuid"

    "github.com/mariia-hub/booking-engine/internal/ledger"
    "github.com/mariia-hub/booking-engine/internal/model"
    "github.com/mariia-hub/booking-engine/internal/repository"
)

// BookingReader is the ledger-side read surface the engine compares
// against the platform.
type BookingReader interface {
    ActiveInRange(ctx context.Context, from, to time.Time) ([]model.Booking, error)
    CancelledInRange(ctx context.Context, from, to time.Time) ([]model.Booking, error)
    ActiveBySlot(ctx context.Context, key model.SlotKey) ([]model.Booking, error)
}

// ConflictStore records and archives divergence evidence.
type ConflictStore interface {
    Create(ctx context.Context, c *model.ConflictRecord) error
    GetByID(ctx context.Context, id uuid.UUID) (*model.ConflictRecord, error)
    FindOpen(ctx context.Context, key model.SlotKey, kind model.ConflictKind) (*model.ConflictRecord, error)
    MarkResolved(ctx context.Context, id uuid.UUID, res model.Resolution) (bool, error)
}

// LedgerOps is the write surface: the engine heals divergence only through
// the same operations a user request would use, so the capacity invariant
// holds even mid-reconciliation.  It receives no special priority and can
// lose a claim race to a user exactly like any other caller.
type LedgerOps interface {
    Reserve(ctx context.Context, key model.SlotKey, customerID string, opts ledger.ReserveOptions) (*model.Booking, error)
    CancelByID(ctx context.Context, id uuid.UUID, originDevice *uuid.UUID) (*model.Booking, error)
    LinkExternal(ctx context.Context, id uuid.UUID, ref string) error
}

// Engine runs full and incremental reconciliation passes between the
// ledger and the external platform.
type Engine struct {
    client    Client
    bookings  BookingReader
    conflicts ConflictStore
    ledger    LedgerOps
    now       func() time.Time
    horizon   int // days
}

// NewEngine constructs an Engine.  The clock is injectable for tests;
// pass nil for time.Now.  horizonDays bounds how far ahead full passes
// look; zero falls back to 14.
func NewEngine(client Client, bookings BookingReader, conflicts ConflictStore, ledgerOps LedgerOps, now func() time.Time, horizonDays int) *Engine {
    if now == nil {
        now = time.Now
    }
    if horizonDays <= 0 {
        horizonDays = 14
    }
    return &Engine{
        client:    client,
        bookings:  bookings,
        conflicts: conflicts,
        ledger:    ledgerOps,
        now:       now,
        horizon:   horizonDays,
    }
}

// RunFull performs one full reconciliation pass over the booking horizon.
// A pass that cannot reach the platform returns ErrExternalUnreachable and
// has no effect on local state: the ledger stays authoritative for local
// operations regardless of sync health.
func (e *Engine) RunFull(ctx context.Context) error {
    from := e.now().UTC()
    to := from.AddDate(0, 0, e.horizon)

    external, err := e.client.List(ctx, from, to)
    if err != nil {
        return err
    }
    active, err := e.bookings.ActiveInRange(ctx, from, to)
    if err != nil {
        return fmt.Errorf("load active bookings: %w", err)
    }
    cancelled, err := e.bookings.CancelledInRange(ctx, from, to)
    if err != nil {
        return fmt.Errorf("load cancelled bookings: %w", err)
    }

    extBySlot := make(map[model.SlotKey][]ExternalBooking)
    for _, ext := range external {
        key := normalizeKey(ext.Slot)
        extBySlot[key] = append(extBySlot[key], ext)
    }
    localBySlot := make(map[model.SlotKey][]model.Booking)
    for _, b := range active {
        localBySlot[b.Slot] = append(localBySlot[b.Slot], b)
    }
    cancelledBySlot := make(map[model.SlotKey][]model.Booking)
    for _, b := range cancelled {
        cancelledBySlot[b.Slot] = append(cancelledBySlot[b.Slot], b)
    }

    keys := make(map[model.SlotKey]struct{})
    for k := range extBySlot {
        keys[k] = struct{}{}
    }
    for k := range localBySlot {
        keys[k] = struct{}{}
    }
    for key := range keys {
        e.reconcileSlot(ctx, key, localBySlot[key], extBySlot[key], cancelledBySlot[key])
    }
    return nil
}

// RunIncremental reconciles a single slot key, typically in response to a
// consumed mutation event or an external webhook.
func (e *Engine) RunIncremental(ctx context.Context, key model.SlotKey) error {
    key = normalizeKey(key)
    from := key.StartsAt.Add(-time.Minute)
    to := key.StartsAt.Add(time.Minute)

    external, err := e.client.List(ctx, from, to)
    if err != nil {
        return err
    }
    var exts []ExternalBooking
    for _, ext := range external {
        if normalizeKey(ext.Slot) == key {
            exts = append(exts, ext)
        }
    }
    locals, err := e.bookings.ActiveBySlot(ctx, key)
    if err != nil {
        return fmt.Errorf("load slot bookings: %w", err)
    }
    cancelled, err := e.bookings.CancelledInRange(ctx, from, to)
    if err != nil {
        return fmt.Errorf("load cancelled bookings: %w", err)
    }
    var slotCancelled []model.Booking
    for _, b := range cancelled {
        if b.Slot == key {
            slotCancelled = append(slotCancelled, b)
        }
    }
    e.reconcileSlot(ctx, key, locals, exts, slotCancelled)
    return nil
}

// reconcileSlot classifies the divergence for one slot key and applies the
// default policy.  Per-item failures are logged, never fatal to the pass.
func (e *Engine) reconcileSlot(ctx context.Context, key model.SlotKey, locals []model.Booking, exts []ExternalBooking, cancelled []model.Booking) {
    matchedLocal := make(map[uuid.UUID]bool)
    matchedExt := make(map[string]bool)

    // Pair up bookings that reference the same logical reservation, either
    // by a stamped external ref or by the same customer on both sides.
    for _, ext := range exts {
        for i := range locals {
            b := &locals[i]
            if matchedLocal[b.ID] {
                continue
            }
            if b.ExternalRef != nil && *b.ExternalRef == ext.Ref {
                matchedLocal[b.ID] = true
                matchedExt[ext.Ref] = true
                break
            }
            if b.ExternalRef == nil && b.CustomerID == ext.Customer {
                if err := e.ledger.LinkExternal(ctx, b.ID, ext.Ref); err != nil {
                    log.Printf("sync-engine: link booking %s to %s: %v", b.ID, ext.Ref, err)
                    continue
                }
                matchedLocal[b.ID] = true
                matchedExt[ext.Ref] = true
                break
            }
        }
    }

    unmatchedLocals := 0
    for _, b := range locals {
        if !matchedLocal[b.ID] {
            unmatchedLocals++
        }
    }

    for _, ext := range exts {
        if matchedExt[ext.Ref] {
            continue
        }
        // A local cancellation newer than the external booking explains
        // its presence: the cancel simply has not propagated outward yet.
        if c := cancellationFor(cancelled, ext); c != nil {
            if err := e.client.Cancel(ctx, ext.Ref); err != nil {
                log.Printf("sync-engine: propagate cancel of %s: %v", ext.Ref, err)
            }
            continue
        }
        if unmatchedLocals > 0 {
            // Both sides claim the slot for different customers: two
            // people were told they hold it.  Never auto-resolved.
            e.raiseConflict(ctx, key, &ext, firstUnmatched(locals, matchedLocal), model.ConflictDoubleClaim)
            continue
        }
        // External-only claim: the platform is the system of record for
        // slots it created, so adopt it locally through the ledger.
        adopted, err := e.ledger.Reserve(ctx, key, ext.Customer, ledger.ReserveOptions{
            Confirmed:   true,
            Source:      model.SourceExternal,
            ExternalRef: &ext.Ref,
        })
        switch {
        case err == nil:
            log.Printf("sync-engine: adopted external booking %s as %s", ext.Ref, adopted.ID)
        case ledger.Retryable(err):
            // A user claimed the slot between listing and adopting; flag
            // instead of forcing.
            e.raiseConflict(ctx, key, &ext, nil, model.ConflictCapacity)
        default:
            log.Printf("sync-engine: adopt external booking %s: %v", ext.Ref, err)
        }
    }

    for _, b := range locals {
        if matchedLocal[b.ID] {
            continue
        }
        if b.ExternalRef != nil {
            e.reconcileVanishedRef(ctx, key, b)
            continue
        }
        if b.Source == model.SourceExternal {
            continue // adopted this pass, ref stamping races the listing
        }
        // Local-only claim not yet propagated: push it outward.
        ref, err := e.client.Create(ctx, ExternalBooking{
            Slot:     b.Slot,
            EndsAt:   b.EndsAt,
            Customer: b.CustomerID,
        })
        if err != nil {
            log.Printf("sync-engine: push booking %s outward: %v", b.ID, err)
            e.raiseConflict(ctx, key, nil, &b, model.ConflictLocalOnly)
            continue
        }
        if err := e.ledger.LinkExternal(ctx, b.ID, ref); err != nil {
            log.Printf("sync-engine: stamp ref %s on booking %s: %v", ref, b.ID, err)
        }
    }
}

// reconcileVanishedRef handles a local active booking whose external
// counterpart disappeared from the platform's listing.  For claims the
// platform originated it is the system of record, so the local copy is
// cancelled; for locally originated claims the local ledger wins and the
// booking is re-pushed on a later pass by clearing nothing and flagging.
func (e *Engine) reconcileVanishedRef(ctx context.Context, key model.SlotKey, b model.Booking) {
    if b.Source == model.SourceExternal {
        if _, err := e.ledger.CancelByID(ctx, b.ID, nil); err != nil {
            log.Printf("sync-engine: cancel adopted booking %s after external cancel: %v", b.ID, err)
        }
        return
    }
    e.raiseConflict(ctx, key, nil, &b, model.ConflictLocalOnly)
}

func (e *Engine) raiseConflict(ctx context.Context, key model.SlotKey, ext *ExternalBooking, local *model.Booking, kind model.ConflictKind) {
    if _, err := e.conflicts.FindOpen(ctx, key, kind); err == nil {
        return // already flagged
    } else if !errors.Is(err, repository.ErrNotFound) {
        log.Printf("sync-engine: check open conflict for %s: %v", key, err)
        return
    }
    rec := &model.ConflictRecord{
        ID:               uuid.New(),
        Slot:             key,
        Kind:             kind,
        DetectedAt:       e.now().UTC(),
        ResolutionStatus: "pending",
    }
    if ext != nil {
        ref := ext.Ref
        cust := ext.Customer
        rec.ExternalRef = &ref
        rec.ExternalCustomer = &cust
    }
    if local != nil {
        id := local.ID
        rec.LocalBookingID = &id
    }
    if err := e.conflicts.Create(ctx, rec); err != nil {
        log.Printf("sync-engine: record conflict for %s: %v", key, err)
        return
    }
    log.Printf("sync-engine: conflict %s (%s) flagged for slot %s", rec.ID, kind, key)
}

// Resolve applies an administrator's decision to a pending conflict.
// prefer_local keeps the local booking and cancels the external claim;
// prefer_external cancels the local booking and adopts the external one;
// manual archives the record with no automated action.  When the ledger
// refuses an adoption because a user claimed the slot first, the conflict
// is re-flagged rather than forced.
func (e *Engine) Resolve(ctx context.Context, conflictID uuid.UUID, res model.Resolution) (*model.ConflictRecord, error) {
    rec, err := e.conflicts.GetByID(ctx, conflictID)
    if err != nil {
        return nil, err
    }
    if rec.ResolutionStatus != "pending" {
        return rec, nil // idempotent: already archived
    }
    if rec.Kind == model.ConflictDoubleClaim && res != model.ResolveManual {
        // Two customers were each told they hold this slot. Neither
        // automatic policy may pick a winner; an administrator settles it
        // out of band and archives with manual.
        return nil, ErrManualResolutionRequired
    }

    switch res {
    case model.ResolvePreferLocal:
        if rec.ExternalRef != nil {
            if err := e.client.Cancel(ctx, *rec.ExternalRef); err != nil {
                return nil, err
            }
        }
    case model.ResolvePreferExternal:
        if rec.LocalBookingID != nil {
            if _, err := e.ledger.CancelByID(ctx, *rec.LocalBookingID, nil); err != nil &&
                !errors.Is(err, repository.ErrNotFound) {
                return nil, err
            }
        }
        if rec.ExternalRef != nil && rec.ExternalCustomer != nil {
            _, err := e.ledger.Reserve(ctx, rec.Slot, *rec.ExternalCustomer, ledger.ReserveOptions{
                Confirmed:   true,
                Source:      model.SourceExternal,
                ExternalRef: rec.ExternalRef,
            })
            if err != nil && ledger.Retryable(err) {
                e.raiseConflict(ctx, rec.Slot, &ExternalBooking{
                    Ref:      *rec.ExternalRef,
                    Slot:     rec.Slot,
                    Customer: *rec.ExternalCustomer,
                }, nil, model.ConflictCapacity)
            } else if err != nil {
                return nil, err
            }
        }
    case model.ResolveManual:
        // Decision taken out of band; archive only.
    default:
        return nil, fmt.Errorf("unknown resolution %q", res)
    }

    if _, err := e.conflicts.MarkResolved(ctx, conflictID, res); err != nil {
        return nil, err
    }
    return e.conflicts.GetByID(ctx, conflictID)
}

// Run executes full passes on the given interval until the context ends.
// Unreachable-platform failures back off exponentially (capped) before the
// next attempt; any other failure is logged and the normal cadence keeps.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
    if interval <= 0 {
        interval = 5 * time.Minute
    }
    backoff := interval
    for {
        err := e.RunFull(ctx)
        switch {
        case err == nil:
            backoff = interval
        case errors.Is(err, ErrExternalUnreachable):
            log.Printf("sync-engine: platform unreachable, next pass in %s: %v", backoff, err)
            if backoff < 30*time.Minute {
                backoff *= 2
            }
        default:
            log.Printf("sync-engine: full pass failed: %v", err)
            backoff = interval
        }
        select {
        case <-ctx.Done():
            return
        case <-time.After(backoff):
        }
    }
}

// cancellationFor finds a cancelled local booking that explains the
// external booking's presence: same reference, or same customer with a
// cancellation recorded after the external side was created.
func cancellationFor(cancelled []model.Booking, ext ExternalBooking) *model.Booking {
    for i := range cancelled {
        c := &cancelled[i]
        if c.CancelledAt == nil {
            continue
        }
        if c.ExternalRef != nil && *c.ExternalRef == ext.Ref {
            return c
        }
        if c.CustomerID == ext.Customer && c.CancelledAt.After(ext.CreatedAt) {
            return c
        }
    }
    return nil
}

func firstUnmatched(locals []model.Booking, matched map[uuid.UUID]bool) *model.Booking {
    for i := range locals {
        if !matched[locals[i].ID] {
            return &locals[i]
        }
    }
    return nil
}

func normalizeKey(key model.SlotKey) model.SlotKey {
    key.StartsAt = key.StartsAt.UTC()
    return key
}
