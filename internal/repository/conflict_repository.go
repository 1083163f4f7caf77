package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/google/uuid"

    "github.com/mariia-hub/booking-engine/internal/model"
)

// ConflictRepo provides data access to the conflicts table.  Conflict
// records are created by the sync engine when local and external booking
// state diverge and are archived (marked resolved) once handled; they are
// never physically deleted.
type ConflictRepo struct {
    db *sql.DB
}

// NewConflictRepo returns a new ConflictRepo bound to the given database.
func NewConflictRepo(db *sql.DB) *ConflictRepo { return &ConflictRepo{db: db} }

const conflictColumns = `id, location, starts_at, service_category, local_booking_id,
    external_ref, external_customer, kind, detected_at, resolution_status, resolution, resolved_at`

func scanConflict(row interface{ Scan(...any) error }) (*model.ConflictRecord, error) {
    var (
        c            model.ConflictRecord
        id           string
        localBooking sql.NullString
        externalRef  sql.NullString
        externalCust sql.NullString
        resolution   sql.NullString
        resolvedAt   sql.NullTime
    )
    err := row.Scan(&id, &c.Slot.Location, &c.Slot.StartsAt, &c.Slot.ServiceCategory,
        &localBooking, &externalRef, &externalCust, &c.Kind, &c.DetectedAt,
        &c.ResolutionStatus, &resolution, &resolvedAt)
    if err != nil {
        return nil, err
    }
    if c.ID, err = uuid.Parse(id); err != nil {
        return nil, err
    }
    if localBooking.Valid {
        bid, err := uuid.Parse(localBooking.String)
        if err != nil {
            return nil, err
        }
        c.LocalBookingID = &bid
    }
    if externalRef.Valid {
        ref := externalRef.String
        c.ExternalRef = &ref
    }
    if externalCust.Valid {
        cust := externalCust.String
        c.ExternalCustomer = &cust
    }
    if resolution.Valid {
        res := model.Resolution(resolution.String)
        c.Resolution = &res
    }
    if resolvedAt.Valid {
        at := resolvedAt.Time
        c.ResolvedAt = &at
    }
    c.Slot.StartsAt = c.Slot.StartsAt.UTC()
    return &c, nil
}

// Create inserts a new pending conflict record.
func (r *ConflictRepo) Create(ctx context.Context, c *model.ConflictRecord) error {
    var (
        localBooking, externalRef, externalCust any
    )
    if c.LocalBookingID != nil {
        localBooking = c.LocalBookingID.String()
    }
    if c.ExternalRef != nil {
        externalRef = *c.ExternalRef
    }
    if c.ExternalCustomer != nil {
        externalCust = *c.ExternalCustomer
    }
    _, err := r.db.ExecContext(ctx,
        `INSERT INTO conflicts (id, location, starts_at, service_category, local_booking_id,
             external_ref, external_customer, kind, detected_at, resolution_status)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending')`,
        c.ID.String(), c.Slot.Location, c.Slot.StartsAt.UTC(), c.Slot.ServiceCategory,
        localBooking, externalRef, externalCust, c.Kind, c.DetectedAt.UTC())
    return err
}

// GetByID fetches a single conflict record.  Returns ErrNotFound when no
// row exists.
func (r *ConflictRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.ConflictRecord, error) {
    row := r.db.QueryRowContext(ctx,
        `SELECT `+conflictColumns+` FROM conflicts WHERE id = ?`, id.String())
    c, err := scanConflict(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return c, err
}

// FindOpen returns the pending conflict for a slot and kind, if one exists,
// so the sync engine does not raise duplicates on every reconciliation
// pass.  Returns ErrNotFound when there is none.
func (r *ConflictRepo) FindOpen(ctx context.Context, key model.SlotKey, kind model.ConflictKind) (*model.ConflictRecord, error) {
    row := r.db.QueryRowContext(ctx,
        `SELECT `+conflictColumns+` FROM conflicts
         WHERE location = ? AND starts_at = ? AND service_category = ? AND kind = ?
           AND resolution_status = 'pending'
         ORDER BY detected_at DESC LIMIT 1`,
        key.Location, key.StartsAt.UTC(), key.ServiceCategory, kind)
    c, err := scanConflict(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return c, err
}

// ListPending returns unresolved conflicts, oldest first, for the
// administrative resolution surface.
func (r *ConflictRepo) ListPending(ctx context.Context, limit int) ([]model.ConflictRecord, error) {
    if limit <= 0 {
        limit = 100
    }
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+conflictColumns+` FROM conflicts
         WHERE resolution_status = 'pending' ORDER BY detected_at LIMIT ?`, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.ConflictRecord
    for rows.Next() {
        c, err := scanConflict(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *c)
    }
    return out, rows.Err()
}

// MarkResolved archives a conflict with the resolution that was applied.
// Resolving an already-resolved conflict is a no-op and reports ok=false.
func (r *ConflictRepo) MarkResolved(ctx context.Context, id uuid.UUID, res model.Resolution) (bool, error) {
    result, err := r.db.ExecContext(ctx,
        `UPDATE conflicts SET resolution_status = 'resolved', resolution = ?, resolved_at = ?
         WHERE id = ? AND resolution_status = 'pending'`,
        res, time.Now().UTC(), id.String())
    if err != nil {
        return false, err
    }
    n, err := result.RowsAffected()
    if err != nil {
        return false, err
    }
    return n > 0, nil
}
