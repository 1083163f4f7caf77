// Package fanout propagates booking mutations to a user's other devices.
// Delivery is best-effort push with a persisted per-device audit trail;
// the recovery path for a device that missed its push is pulling the
// current ledger state on reconnect, not a retry queue.
package fanout

import (
    "context"
    "fmt"
    "log"
    "time"

    "github.com/google/uuid"

    "github.com/mariia-hub/booking-engine/internal/model"
    "github.com/mariia-hub/booking-engine/internal/queue"
)

// DeviceSource lists the active devices of one user.
type DeviceSource interface {
    ActiveByUser(ctx context.Context, userID string) ([]model.Device, error)
}

// NotificationStore persists notifications and their per-device outcomes.
type NotificationStore interface {
    Create(ctx context.Context, n *model.SyncNotification) error
    RecordDelivery(ctx context.Context, d *model.DeliveryRecord) error
    DueScheduled(ctx context.Context, now time.Time) ([]model.SyncNotification, error)
}

// Pusher delivers one notification to one device endpoint.
type Pusher interface {
    Push(ctx context.Context, device model.Device, n model.SyncNotification) error
}

var supportedPlatforms = map[string]bool{"ios": true, "android": true, "web": true}

// Dispatcher consumes booking mutation events and fans them out.
type Dispatcher struct {
    devices DeviceSource
    store   NotificationStore
    pusher  Pusher
    now     func() time.Time
}

// NewDispatcher constructs a Dispatcher.  The clock is injectable for
// tests; pass nil for time.Now.
func NewDispatcher(devices DeviceSource, store NotificationStore, pusher Pusher, now func() time.Time) *Dispatcher {
    if now == nil {
        now = time.Now
    }
    return &Dispatcher{devices: devices, store: store, pusher: pusher, now: now}
}

// HandleMutation turns one ledger mutation into a notification for the
// affected user and delivers it immediately.
func (d *Dispatcher) HandleMutation(ctx context.Context, ev queue.BookingMutated) error {
    n := NotificationFor(ev)
    if err := d.store.Create(ctx, &n); err != nil {
        return fmt.Errorf("persist notification: %w", err)
    }
    return d.Deliver(ctx, n)
}

// Deliver pushes a notification to its delivery set, recording each
// device's outcome independently so one device's failure never blocks the
// others.  Devices inside their quiet window are suppressed unless the
// notification's priority or type bypasses quiet hours.
func (d *Dispatcher) Deliver(ctx context.Context, n model.SyncNotification) error {
    devices, err := d.devices.ActiveByUser(ctx, n.UserID)
    if err != nil {
        return fmt.Errorf("list devices: %w", err)
    }
    now := d.now().UTC()
    for _, dev := range SelectTargets(devices, &n) {
        rec := model.DeliveryRecord{
            NotificationID: n.ID,
            DeviceID:       dev.ID,
            AttemptedAt:    now,
        }
        switch {
        case Suppressed(&dev, &n, now):
            rec.Status = model.DeliverySuppressed
        case dev.PushAddress == nil || *dev.PushAddress == "":
            rec.Status = model.DeliveryNoEndpoint
        case !supportedPlatforms[dev.Platform]:
            rec.Status = model.DeliveryUnsupported
            rec.Detail = dev.Platform
        default:
            if err := d.pusher.Push(ctx, dev, n); err != nil {
                rec.Status = model.DeliveryFailed
                rec.Detail = err.Error()
            } else {
                rec.Status = model.DeliveryDelivered
            }
        }
        if err := d.store.RecordDelivery(ctx, &rec); err != nil {
            log.Printf("fanout: record delivery for notification %s device %s: %v", n.ID, dev.ID, err)
        }
    }
    return nil
}

// RunScheduler drains deferred notifications whose scheduled time has
// come, on the given interval, until the context ends.
func (d *Dispatcher) RunScheduler(ctx context.Context, interval time.Duration) {
    if interval <= 0 {
        interval = time.Minute
    }
    ticker := time.NewTicker(interval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            due, err := d.store.DueScheduled(ctx, d.now().UTC())
            if err != nil {
                log.Printf("fanout: list due notifications: %v", err)
                continue
            }
            for _, n := range due {
                if err := d.Deliver(ctx, n); err != nil {
                    log.Printf("fanout: deliver scheduled notification %s: %v", n.ID, err)
                }
            }
        }
    }
}

// SelectTargets computes the delivery set for a notification from the
// user's active devices.  Explicit target/exclude lists override the
// default of "every active device except the originating one".
func SelectTargets(devices []model.Device, n *model.SyncNotification) []model.Device {
    included := func(d *model.Device) bool {
        if len(n.TargetDevices) > 0 {
            return containsID(n.TargetDevices, d.ID)
        }
        if n.OriginatingDevice != nil && d.ID == *n.OriginatingDevice {
            return false
        }
        return true
    }
    var out []model.Device
    for _, d := range devices {
        if !included(&d) {
            continue
        }
        if containsID(n.ExcludeDevices, d.ID) {
            continue
        }
        out = append(out, d)
    }
    return out
}

// Suppressed reports whether quiet hours remove the device from the
// delivery set.  High-priority and system_update notifications bypass
// quiet hours; so the user is never left unaware of urgent changes.
func Suppressed(d *model.Device, n *model.SyncNotification, at time.Time) bool {
    if n.Priority >= model.PriorityBypassQuietHours || n.Type == model.TypeSystemUpdate {
        return false
    }
    if d.DoNotDisturb {
        return true
    }
    return d.InQuietWindow(at)
}

// NotificationFor builds the user-facing notification for one mutation.
func NotificationFor(ev queue.BookingMutated) model.SyncNotification {
    slot := ev.Booking.Slot
    when := slot.StartsAt.UTC().Format("Mon 2 Jan 15:04")
    var title, body string
    priority := 5
    switch ev.MutationKind {
    case queue.MutationReserve:
        title = "Booking created"
        body = fmt.Sprintf("Your %s appointment at %s on %s is booked.", slot.ServiceCategory, slot.Location, when)
    case queue.MutationReschedule:
        title = "Booking rescheduled"
        body = fmt.Sprintf("Your %s appointment moved to %s at %s.", slot.ServiceCategory, when, slot.Location)
        priority = 6
    case queue.MutationCancel:
        title = "Booking cancelled"
        body = fmt.Sprintf("Your %s appointment at %s on %s was cancelled.", slot.ServiceCategory, slot.Location, when)
        priority = 6
    case queue.MutationConfirm:
        title = "Booking confirmed"
        body = fmt.Sprintf("Your %s appointment at %s on %s is confirmed.", slot.ServiceCategory, slot.Location, when)
    case queue.MutationComplete:
        title = "Thanks for visiting"
        body = fmt.Sprintf("Your %s appointment at %s is complete.", slot.ServiceCategory, slot.Location)
        priority = 3
    default:
        title = "Booking updated"
        body = fmt.Sprintf("Your %s appointment at %s on %s changed.", slot.ServiceCategory, slot.Location, when)
    }
    return model.SyncNotification{
        ID:                uuid.New(),
        UserID:            ev.AffectedUserID,
        Title:             title,
        Body:              body,
        Type:              model.TypeBookingUpdate,
        Priority:          priority,
        OriginatingDevice: ev.OriginDevice,
        CreatedAt:         ev.OccurredAt.UTC(),
    }
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
    for _, v := range ids {
        if v == id {
            return true
        }
    }
    return false
}
