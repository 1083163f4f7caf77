package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/google/uuid"

    "github.com/mariia-hub/booking-engine/internal/model"
)

// BookingRepo provides data access to the bookings table and owns the
// storage-level serialization that makes slot claims safe under concurrent
// requests.  The serialization point is a row in slot_locks, one per slot
// key: every claim INSERT IGNOREs the row and then takes a FOR UPDATE lock
// on it before counting active bookings, so two transactions claiming the
// same slot are ordered by InnoDB regardless of which process instance they
// run in.  Unrelated slot keys lock different rows and do not contend.
type BookingRepo struct {
    db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying handle for callers that need to coordinate
// transactions across repositories.
func (r *BookingRepo) DB() *sql.DB { return r.db }

const bookingColumns = `id, location, starts_at, service_category, ends_at, template_id,
    customer_id, status, source, external_ref, reschedule_token, rescheduled_to,
    cancelled_at, created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (*model.Booking, error) {
    var (
        b             model.Booking
        id, reschedTo string
        externalRef   sql.NullString
        rescheduledTo sql.NullString
        cancelledAt   sql.NullTime
    )
    err := row.Scan(&id, &b.Slot.Location, &b.Slot.StartsAt, &b.Slot.ServiceCategory,
        &b.EndsAt, &b.TemplateID, &b.CustomerID, &b.Status, &b.Source, &externalRef,
        &b.RescheduleToken, &rescheduledTo, &cancelledAt, &b.CreatedAt, &b.UpdatedAt)
    if err != nil {
        return nil, err
    }
    if b.ID, err = uuid.Parse(id); err != nil {
        return nil, err
    }
    if externalRef.Valid {
        ref := externalRef.String
        b.ExternalRef = &ref
    }
    if rescheduledTo.Valid {
        reschedTo = rescheduledTo.String
        to, err := uuid.Parse(reschedTo)
        if err != nil {
            return nil, err
        }
        b.RescheduledTo = &to
    }
    if cancelledAt.Valid {
        at := cancelledAt.Time
        b.CancelledAt = &at
    }
    b.Slot.StartsAt = b.Slot.StartsAt.UTC()
    b.EndsAt = b.EndsAt.UTC()
    return &b, nil
}

// lockSlotTx ensures a slot_locks row exists for the key and locks it for
// the duration of the transaction.  The bounded wait comes from the
// caller's context deadline: a lock that cannot be acquired in time fails
// the query instead of queuing indefinitely.
func lockSlotTx(ctx context.Context, tx *sql.Tx, key model.SlotKey) error {
    if _, err := tx.ExecContext(ctx,
        `INSERT IGNORE INTO slot_locks (location, starts_at, service_category) VALUES (?, ?, ?)`,
        key.Location, key.StartsAt.UTC(), key.ServiceCategory); err != nil {
        return err
    }
    var one int
    return tx.QueryRowContext(ctx,
        `SELECT 1 FROM slot_locks WHERE location = ? AND starts_at = ? AND service_category = ? FOR UPDATE`,
        key.Location, key.StartsAt.UTC(), key.ServiceCategory).Scan(&one)
}

func activeCountTx(ctx context.Context, tx *sql.Tx, key model.SlotKey) (int, error) {
    var n int
    err := tx.QueryRowContext(ctx,
        `SELECT COUNT(*) FROM bookings
         WHERE location = ? AND starts_at = ? AND service_category = ? AND status <> 'cancelled'`,
        key.Location, key.StartsAt.UTC(), key.ServiceCategory).Scan(&n)
    return n, err
}

func insertBookingTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
    var externalRef any
    if b.ExternalRef != nil {
        externalRef = *b.ExternalRef
    }
    _, err := tx.ExecContext(ctx,
        `INSERT INTO bookings (id, location, starts_at, service_category, ends_at, template_id,
             customer_id, status, source, external_ref, reschedule_token)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
        b.ID.String(), b.Slot.Location, b.Slot.StartsAt.UTC(), b.Slot.ServiceCategory,
        b.EndsAt.UTC(), b.TemplateID, b.CustomerID, b.Status, b.Source, externalRef,
        b.RescheduleToken)
    return err
}

// ClaimSlot atomically inserts the booking provided that fewer than
// capacity non-cancelled bookings exist for its slot key.  It returns
// ok=false without inserting when the slot is at capacity.  The booking's
// timestamps are populated from the committed row.
func (r *BookingRepo) ClaimSlot(ctx context.Context, b *model.Booking, capacity int) (bool, error) {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return false, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if err := lockSlotTx(ctx, tx, b.Slot); err != nil {
        return false, err
    }
    n, err := activeCountTx(ctx, tx, b.Slot)
    if err != nil {
        return false, err
    }
    if n >= capacity {
        return false, nil
    }
    if err := insertBookingTx(ctx, tx, b); err != nil {
        return false, err
    }
    if err := tx.Commit(); err != nil {
        return false, err
    }
    committed = true
    got, err := r.GetByID(ctx, b.ID)
    if err == nil {
        *b = *got
    }
    return true, nil
}

// RescheduleSwap claims the new booking and cancels the old one in a single
// transaction, so a crash between the two steps can never leave the
// customer holding both slots or neither.  Returns ok=false without any
// change when the new slot is at capacity.  Both slot keys are locked in a
// fixed order (by canonical key string) to avoid deadlocks between two
// opposing reschedules.
func (r *BookingRepo) RescheduleSwap(ctx context.Context, old *model.Booking, nb *model.Booking, capacity int) (bool, error) {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return false, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    first, second := nb.Slot, old.Slot
    if second.String() < first.String() {
        first, second = second, first
    }
    if err := lockSlotTx(ctx, tx, first); err != nil {
        return false, err
    }
    if first != second {
        if err := lockSlotTx(ctx, tx, second); err != nil {
            return false, err
        }
    }
    n, err := activeCountTx(ctx, tx, nb.Slot)
    if err != nil {
        return false, err
    }
    if n >= capacity {
        return false, nil
    }
    if err := insertBookingTx(ctx, tx, nb); err != nil {
        return false, err
    }
    now := time.Now().UTC()
    if _, err := tx.ExecContext(ctx,
        `UPDATE bookings SET status = 'cancelled', cancelled_at = ?, rescheduled_to = ? WHERE id = ?`,
        now, nb.ID.String(), old.ID.String()); err != nil {
        return false, err
    }
    if err := tx.Commit(); err != nil {
        return false, err
    }
    committed = true
    if got, err := r.GetByID(ctx, nb.ID); err == nil {
        *nb = *got
    }
    if got, err := r.GetByID(ctx, old.ID); err == nil {
        *old = *got
    }
    return true, nil
}

// GetByID fetches a booking by primary key.  Returns ErrNotFound when no
// row exists.
func (r *BookingRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
    row := r.db.QueryRowContext(ctx,
        `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id.String())
    b, err := scanBooking(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return b, err
}

// GetByToken fetches a booking by its reschedule token.  Returns
// ErrNotFound when the token matches nothing.
func (r *BookingRepo) GetByToken(ctx context.Context, token string) (*model.Booking, error) {
    row := r.db.QueryRowContext(ctx,
        `SELECT `+bookingColumns+` FROM bookings WHERE reschedule_token = ?`, token)
    b, err := scanBooking(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return b, err
}

// FindByExternalRef fetches the booking carrying the given external
// platform reference, if any.  Returns ErrNotFound when absent.
func (r *BookingRepo) FindByExternalRef(ctx context.Context, ref string) (*model.Booking, error) {
    row := r.db.QueryRowContext(ctx,
        `SELECT `+bookingColumns+` FROM bookings WHERE external_ref = ? ORDER BY created_at DESC LIMIT 1`, ref)
    b, err := scanBooking(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return b, err
}

// SetStatus updates a booking's lifecycle status.  When the new status is
// cancelled the cancellation time is recorded as well.  Transition
// legality is the ledger's concern, not the repository's.
func (r *BookingRepo) SetStatus(ctx context.Context, id uuid.UUID, status model.BookingStatus) error {
    if status == model.StatusCancelled {
        _, err := r.db.ExecContext(ctx,
            `UPDATE bookings SET status = ?, cancelled_at = ? WHERE id = ?`,
            status, time.Now().UTC(), id.String())
        return err
    }
    _, err := r.db.ExecContext(ctx,
        `UPDATE bookings SET status = ? WHERE id = ?`, status, id.String())
    return err
}

// SetExternalRef stamps the external platform's reference onto a booking
// once the sync engine has matched or propagated it.
func (r *BookingRepo) SetExternalRef(ctx context.Context, id uuid.UUID, ref string) error {
    _, err := r.db.ExecContext(ctx,
        `UPDATE bookings SET external_ref = ? WHERE id = ?`, ref, id.String())
    return err
}

// ActiveBySlot lists the non-cancelled bookings claiming the given slot.
func (r *BookingRepo) ActiveBySlot(ctx context.Context, key model.SlotKey) ([]model.Booking, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+bookingColumns+` FROM bookings
         WHERE location = ? AND starts_at = ? AND service_category = ? AND status <> 'cancelled'
         ORDER BY created_at`,
        key.Location, key.StartsAt.UTC(), key.ServiceCategory)
    if err != nil {
        return nil, err
    }
    return collectBookings(rows)
}

// ActiveCounts returns the number of non-cancelled bookings per slot key
// for slots starting in [from, to).  The availability resolver subtracts
// these counts from generated capacity.
func (r *BookingRepo) ActiveCounts(ctx context.Context, from, to time.Time) (map[model.SlotKey]int, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT location, starts_at, service_category, COUNT(*) FROM bookings
         WHERE starts_at >= ? AND starts_at < ? AND status <> 'cancelled'
         GROUP BY location, starts_at, service_category`,
        from.UTC(), to.UTC())
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    counts := make(map[model.SlotKey]int)
    for rows.Next() {
        var (
            key model.SlotKey
            n   int
        )
        if err := rows.Scan(&key.Location, &key.StartsAt, &key.ServiceCategory, &n); err != nil {
            return nil, err
        }
        key.StartsAt = key.StartsAt.UTC()
        counts[key] = n
    }
    return counts, rows.Err()
}

// ActiveInRange lists the non-cancelled bookings whose slot starts within
// [from, to), ordered by start time.  Used by the sync engine to compare
// local state against the external platform.
func (r *BookingRepo) ActiveInRange(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+bookingColumns+` FROM bookings
         WHERE starts_at >= ? AND starts_at < ? AND status <> 'cancelled'
         ORDER BY starts_at, location, service_category`,
        from.UTC(), to.UTC())
    if err != nil {
        return nil, err
    }
    return collectBookings(rows)
}

// CancelledInRange lists cancelled bookings whose slot starts within
// [from, to).  The sync engine uses recorded cancellation times to tell a
// conflict-free local cancellation apart from real divergence.
func (r *BookingRepo) CancelledInRange(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+bookingColumns+` FROM bookings
         WHERE starts_at >= ? AND starts_at < ? AND status = 'cancelled'
         ORDER BY starts_at, location, service_category`,
        from.UTC(), to.UTC())
    if err != nil {
        return nil, err
    }
    return collectBookings(rows)
}

// ListByCustomer returns all bookings of one customer, newest slot first.
// This is the pull path a reconnecting device uses to catch up on state it
// missed while offline.
func (r *BookingRepo) ListByCustomer(ctx context.Context, customerID string) ([]model.Booking, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+bookingColumns+` FROM bookings WHERE customer_id = ? ORDER BY starts_at DESC`,
        customerID)
    if err != nil {
        return nil, err
    }
    return collectBookings(rows)
}

func collectBookings(rows *sql.Rows) ([]model.Booking, error) {
    defer rows.Close()
    var out []model.Booking
    for rows.Next() {
        b, err := scanBooking(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *b)
    }
    return out, rows.Err()
}
