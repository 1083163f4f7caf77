package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/google/uuid"

    "github.com/mariia-hub/booking-engine/internal/model"
)

// DeviceRepo provides data access to the devices table.  Devices are
// registered by the surrounding product at sign-in and deactivated on
// sign-out or staleness; the fan-out only ever reads them by user.
type DeviceRepo struct {
    db *sql.DB
}

// NewDeviceRepo returns a new DeviceRepo bound to the given database.
func NewDeviceRepo(db *sql.DB) *DeviceRepo { return &DeviceRepo{db: db} }

const deviceColumns = `id, user_id, platform, push_address, is_active, do_not_disturb,
    quiet_start_min, quiet_end_min, created_at, updated_at`

func scanDevice(row interface{ Scan(...any) error }) (*model.Device, error) {
    var (
        d           model.Device
        id          string
        pushAddress sql.NullString
        quietStart  sql.NullInt64
        quietEnd    sql.NullInt64
    )
    err := row.Scan(&id, &d.UserID, &d.Platform, &pushAddress, &d.IsActive,
        &d.DoNotDisturb, &quietStart, &quietEnd, &d.CreatedAt, &d.UpdatedAt)
    if err != nil {
        return nil, err
    }
    if d.ID, err = uuid.Parse(id); err != nil {
        return nil, err
    }
    if pushAddress.Valid {
        addr := pushAddress.String
        d.PushAddress = &addr
    }
    if quietStart.Valid {
        v := int(quietStart.Int64)
        d.QuietStartMin = &v
    }
    if quietEnd.Valid {
        v := int(quietEnd.Int64)
        d.QuietEndMin = &v
    }
    return &d, nil
}

// Create registers a device.  The caller supplies the generated ID.
func (r *DeviceRepo) Create(ctx context.Context, d *model.Device) error {
    var pushAddress any
    if d.PushAddress != nil {
        pushAddress = *d.PushAddress
    }
    _, err := r.db.ExecContext(ctx,
        `INSERT INTO devices (id, user_id, platform, push_address, is_active, do_not_disturb)
         VALUES (?, ?, ?, ?, ?, ?)`,
        d.ID.String(), d.UserID, d.Platform, pushAddress, d.IsActive, d.DoNotDisturb)
    if err != nil {
        return err
    }
    got, err := r.GetByID(ctx, d.ID)
    if err != nil {
        return err
    }
    *d = *got
    return nil
}

// GetByID fetches a single device.  Returns ErrNotFound when no row exists.
func (r *DeviceRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Device, error) {
    row := r.db.QueryRowContext(ctx,
        `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id.String())
    d, err := scanDevice(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return d, err
}

// ActiveByUser lists a user's active devices, the default delivery set of
// the fan-out.
func (r *DeviceRepo) ActiveByUser(ctx context.Context, userID string) ([]model.Device, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+deviceColumns+` FROM devices WHERE user_id = ? AND is_active = 1 ORDER BY created_at`,
        userID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Device
    for rows.Next() {
        d, err := scanDevice(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *d)
    }
    return out, rows.Err()
}

// Deactivate marks a device inactive.  Deactivating an unknown device
// returns ErrNotFound.
func (r *DeviceRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
    result, err := r.db.ExecContext(ctx,
        `UPDATE devices SET is_active = 0 WHERE id = ?`, id.String())
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

// SetQuietHours configures the device's do-not-disturb window.  Passing
// nil bounds clears the window; the dnd flag suppresses everything below
// the bypass priority regardless of the window.
func (r *DeviceRepo) SetQuietHours(ctx context.Context, id uuid.UUID, startMin, endMin *int, dnd bool) error {
    var start, end any
    if startMin != nil {
        start = *startMin
    }
    if endMin != nil {
        end = *endMin
    }
    result, err := r.db.ExecContext(ctx,
        `UPDATE devices SET quiet_start_min = ?, quiet_end_min = ?, do_not_disturb = ? WHERE id = ?`,
        start, end, dnd, id.String())
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
