package handler

import (
    "context"  // detached context for background passes
    "log"      // reporting background pass failures
    "net/http" // HTTP status codes
    "time"     // bounding background pass duration

    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/mariia-hub/booking-engine/internal/extsync" // reconciliation engine
)

// SyncHandler triggers reconciliation passes against the external
// scheduling platform.  Full passes are admin-initiated; the incremental
// path is driven by the platform's own webhook so slot-level divergence
// is caught between full passes.
type SyncHandler struct {
    Engine *extsync.Engine
}

// NewSyncHandler constructs a SyncHandler.  The engine must be non-nil.
func NewSyncHandler(engine *extsync.Engine) *SyncHandler {
    if engine == nil {
        panic("nil engine passed to NewSyncHandler")
    }
    return &SyncHandler{Engine: engine}
}

// RunFull handles POST /v1/admin/sync/run.  The pass runs in the
// background on a detached context so a slow external platform cannot
// hold the admin request open; divergences surface as conflict records,
// not as this response.  202 only acknowledges the trigger.
func (h *SyncHandler) RunFull(c echo.Context) error {
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
        defer cancel()
        if err := h.Engine.RunFull(ctx); err != nil {
            log.Printf("sync: admin-triggered full pass failed: %v", err)
        }
    }()
    return c.JSON(http.StatusAccepted, echo.Map{"status": "sync started"})
}

// Webhook handles POST /v1/external/webhook.  The external platform posts
// the slot key it changed and the engine reconciles just that slot.  The
// payload is advisory — reconciliation re-reads both sides — so a key
// that parses but matches nothing is still a 202: there is simply nothing
// to converge.
func (h *SyncHandler) Webhook(c echo.Context) error {
    var body slotKeyBody
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    key, err := body.slotKey()
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
        defer cancel()
        if err := h.Engine.RunIncremental(ctx, key); err != nil {
            log.Printf("sync: incremental pass for %s failed: %v", key, err)
        }
    }()
    return c.JSON(http.StatusAccepted, echo.Map{"status": "reconciling", "slot": key})
}
