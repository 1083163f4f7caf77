package fanout

import (
    "context"
    "fmt"
    "os"
    "path/filepath"

    "github.com/mariia-hub/booking-engine/internal/model"
)

// LogPusher appends each delivery to logs/notifications.log in a
// single-line, human-friendly format.  It stands in for a real push
// gateway in development and test environments; the Pusher interface is
// the seam where an APNs/FCM/WebPush sender plugs in.
type LogPusher struct {
    dir string
}

// NewLogPusher returns a LogPusher writing under the given directory
// ("logs" when empty).
func NewLogPusher(dir string) *LogPusher {
    if dir == "" {
        dir = "logs"
    }
    return &LogPusher{dir: dir}
}

// Push records the delivery.  It never blocks on external systems, so a
// delivery "succeeds" as soon as the line is durable.
func (p *LogPusher) Push(_ context.Context, device model.Device, n model.SyncNotification) error {
    if err := os.MkdirAll(p.dir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", p.dir, err)
    }
    fpath := filepath.Join(p.dir, "notifications.log")
    f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    line := fmt.Sprintf("[%s] %s | user=%s | device=%s (%s) | priority=%d | %s: %s\n",
        n.CreatedAt.Format("2006-01-02 15:04:05"), n.Type, n.UserID, device.ID,
        device.Platform, n.Priority, n.Title, n.Body)
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}
