package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"

    "github.com/mariia-hub/booking-engine/internal/model"
)

// TemplateRepo provides data access to the availability_templates table.
// Templates are the only administrator-edited input of the slot generator;
// they are soft-disabled rather than deleted so that slots generated in the
// past keep a valid template reference.
type TemplateRepo struct {
    db *sql.DB
}

// NewTemplateRepo returns a new TemplateRepo bound to the given database.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

const templateColumns = `id, location, service_category, day_of_week, start_time, end_time,
    slot_duration_minutes, capacity, disabled, created_at, updated_at`

func scanTemplate(row interface{ Scan(...any) error }) (*model.AvailabilityTemplate, error) {
    var t model.AvailabilityTemplate
    err := row.Scan(&t.ID, &t.Location, &t.ServiceCategory, &t.DayOfWeek, &t.StartTime,
        &t.EndTime, &t.SlotDuration, &t.Capacity, &t.Disabled, &t.CreatedAt, &t.UpdatedAt)
    if err != nil {
        return nil, err
    }
    return &t, nil
}

// Create inserts a new template and populates the generated ID on the
// provided record.  Validation is the caller's responsibility.
func (r *TemplateRepo) Create(ctx context.Context, t *model.AvailabilityTemplate) error {
    const q = `INSERT INTO availability_templates
        (location, service_category, day_of_week, start_time, end_time, slot_duration_minutes, capacity, disabled)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
    result, err := r.db.ExecContext(ctx, q, t.Location, t.ServiceCategory, t.DayOfWeek,
        t.StartTime, t.EndTime, t.SlotDuration, t.Capacity, t.Disabled)
    if err != nil {
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    t.ID = uint64(id)
    got, err := r.GetByID(ctx, t.ID)
    if err != nil {
        return err
    }
    *t = *got
    return nil
}

// Update rewrites all mutable fields of an existing template.  Templates
// referenced by past slots stay immutable for the past by construction:
// already-created bookings carry their own copy of start/end times, so an
// edit only affects slots generated from now on.
func (r *TemplateRepo) Update(ctx context.Context, t *model.AvailabilityTemplate) error {
    const q = `UPDATE availability_templates
        SET location = ?, service_category = ?, day_of_week = ?, start_time = ?, end_time = ?,
            slot_duration_minutes = ?, capacity = ?, disabled = ?
        WHERE id = ?`
    result, err := r.db.ExecContext(ctx, q, t.Location, t.ServiceCategory, t.DayOfWeek,
        t.StartTime, t.EndTime, t.SlotDuration, t.Capacity, t.Disabled, t.ID)
    if err != nil {
        return err
    }
    n, err := result.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        if _, err := r.GetByID(ctx, t.ID); err != nil {
            return err
        }
    }
    return nil
}

// SetDisabled flips the soft-disable flag.  Disabled templates generate no
// new slots but remain referenced by existing bookings.
func (r *TemplateRepo) SetDisabled(ctx context.Context, id uint64, disabled bool) error {
    result, err := r.db.ExecContext(ctx,
        `UPDATE availability_templates SET disabled = ? WHERE id = ?`, disabled, id)
    if err != nil {
        return err
    }
    n, err := result.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        if _, err := r.GetByID(ctx, id); err != nil {
            return err
        }
    }
    return nil
}

// GetByID fetches a single template.  Returns ErrNotFound when no row
// exists.
func (r *TemplateRepo) GetByID(ctx context.Context, id uint64) (*model.AvailabilityTemplate, error) {
    row := r.db.QueryRowContext(ctx,
        `SELECT `+templateColumns+` FROM availability_templates WHERE id = ?`, id)
    t, err := scanTemplate(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return t, err
}

// List returns templates matching the optional location and service
// category filters, enabled ones only unless includeDisabled is set.
// Results are ordered deterministically for stable admin listings.
func (r *TemplateRepo) List(ctx context.Context, location, category string, includeDisabled bool) ([]model.AvailabilityTemplate, error) {
    var (
        conds []string
        args  []any
    )
    if location != "" {
        conds = append(conds, "location = ?")
        args = append(args, location)
    }
    if category != "" {
        conds = append(conds, "service_category = ?")
        args = append(args, category)
    }
    if !includeDisabled {
        conds = append(conds, "disabled = 0")
    }
    q := `SELECT ` + templateColumns + ` FROM availability_templates`
    if len(conds) > 0 {
        q += " WHERE " + strings.Join(conds, " AND ")
    }
    q += " ORDER BY location, service_category, day_of_week, start_time, id"

    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.AvailabilityTemplate
    for rows.Next() {
        t, err := scanTemplate(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *t)
    }
    return out, rows.Err()
}
