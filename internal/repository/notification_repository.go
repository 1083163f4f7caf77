package repository

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "time"

    "github.com/google/uuid"

    "github.com/mariia-hub/booking-engine/internal/model"
)

// NotificationRepo provides data access to the notifications and
// notification_deliveries tables.  Notification rows are a delivery audit
// trail: once every targeted device has an outcome the record is never
// replayed.  Device ID lists are stored as JSON arrays.
type NotificationRepo struct {
    db *sql.DB
}

// NewNotificationRepo returns a new NotificationRepo bound to the given
// database.
func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

const notificationColumns = `id, user_id, title, body, type, priority, target_devices,
    exclude_devices, originating_device, scheduled_at, created_at`

func marshalDeviceIDs(ids []uuid.UUID) (any, error) {
    if len(ids) == 0 {
        return nil, nil
    }
    b, err := json.Marshal(ids)
    if err != nil {
        return nil, err
    }
    return string(b), nil
}

func unmarshalDeviceIDs(s sql.NullString) ([]uuid.UUID, error) {
    if !s.Valid || s.String == "" {
        return nil, nil
    }
    var ids []uuid.UUID
    if err := json.Unmarshal([]byte(s.String), &ids); err != nil {
        return nil, err
    }
    return ids, nil
}

func scanNotification(row interface{ Scan(...any) error }) (*model.SyncNotification, error) {
    var (
        n           model.SyncNotification
        id          string
        targets     sql.NullString
        excludes    sql.NullString
        originating sql.NullString
        scheduledAt sql.NullTime
    )
    err := row.Scan(&id, &n.UserID, &n.Title, &n.Body, &n.Type, &n.Priority,
        &targets, &excludes, &originating, &scheduledAt, &n.CreatedAt)
    if err != nil {
        return nil, err
    }
    if n.ID, err = uuid.Parse(id); err != nil {
        return nil, err
    }
    if n.TargetDevices, err = unmarshalDeviceIDs(targets); err != nil {
        return nil, err
    }
    if n.ExcludeDevices, err = unmarshalDeviceIDs(excludes); err != nil {
        return nil, err
    }
    if originating.Valid {
        dev, err := uuid.Parse(originating.String)
        if err != nil {
            return nil, err
        }
        n.OriginatingDevice = &dev
    }
    if scheduledAt.Valid {
        at := scheduledAt.Time.UTC()
        n.ScheduledAt = &at
    }
    return &n, nil
}

// Create persists a notification before delivery is attempted, so the
// audit trail exists even if the process dies mid fan-out.
func (r *NotificationRepo) Create(ctx context.Context, n *model.SyncNotification) error {
    targets, err := marshalDeviceIDs(n.TargetDevices)
    if err != nil {
        return err
    }
    excludes, err := marshalDeviceIDs(n.ExcludeDevices)
    if err != nil {
        return err
    }
    var (
        originating any
        scheduledAt any
    )
    if n.OriginatingDevice != nil {
        originating = n.OriginatingDevice.String()
    }
    if n.ScheduledAt != nil {
        scheduledAt = n.ScheduledAt.UTC()
    }
    _, err = r.db.ExecContext(ctx,
        `INSERT INTO notifications (id, user_id, title, body, type, priority, target_devices,
             exclude_devices, originating_device, scheduled_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
        n.ID.String(), n.UserID, n.Title, n.Body, n.Type, n.Priority,
        targets, excludes, originating, scheduledAt)
    return err
}

// GetByID fetches a single notification.  Returns ErrNotFound when no row
// exists.
func (r *NotificationRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.SyncNotification, error) {
    row := r.db.QueryRowContext(ctx,
        `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id.String())
    n, err := scanNotification(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return n, err
}

// DueScheduled returns scheduled notifications whose time has come and
// that have no delivery outcomes yet.  The fan-out's sweep ticker drains
// this list.
func (r *NotificationRepo) DueScheduled(ctx context.Context, now time.Time) ([]model.SyncNotification, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+notificationColumns+` FROM notifications n
         WHERE n.scheduled_at IS NOT NULL AND n.scheduled_at <= ?
           AND NOT EXISTS (SELECT 1 FROM notification_deliveries d WHERE d.notification_id = n.id)
         ORDER BY n.scheduled_at`,
        now.UTC())
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.SyncNotification
    for rows.Next() {
        n, err := scanNotification(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *n)
    }
    return out, rows.Err()
}

// RecordDelivery stores the per-device outcome of one delivery attempt.
// Outcomes are written independently so that one device's failure never
// blocks the audit trail of the others.
func (r *NotificationRepo) RecordDelivery(ctx context.Context, d *model.DeliveryRecord) error {
    var detail any
    if d.Detail != "" {
        detail = d.Detail
    }
    _, err := r.db.ExecContext(ctx,
        `INSERT INTO notification_deliveries (notification_id, device_id, status, detail, attempted_at)
         VALUES (?, ?, ?, ?, ?)
         ON DUPLICATE KEY UPDATE status = VALUES(status), detail = VALUES(detail), attempted_at = VALUES(attempted_at)`,
        d.NotificationID.String(), d.DeviceID.String(), d.Status, detail, d.AttemptedAt.UTC())
    return err
}

// DeliveriesFor lists the recorded outcomes of one notification.
func (r *NotificationRepo) DeliveriesFor(ctx context.Context, notificationID uuid.UUID) ([]model.DeliveryRecord, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT notification_id, device_id, status, detail, attempted_at
         FROM notification_deliveries WHERE notification_id = ? ORDER BY device_id`,
        notificationID.String())
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.DeliveryRecord
    for rows.Next() {
        var (
            rec          model.DeliveryRecord
            nid, did     string
            detail       sql.NullString
        )
        if err := rows.Scan(&nid, &did, &rec.Status, &detail, &rec.AttemptedAt); err != nil {
            return nil, err
        }
        if rec.NotificationID, err = uuid.Parse(nid); err != nil {
            return nil, err
        }
        if rec.DeviceID, err = uuid.Parse(did); err != nil {
            return nil, err
        }
        if detail.Valid {
            rec.Detail = detail.String
        }
        out = append(out, rec)
    }
    return out, rows.Err()
}
