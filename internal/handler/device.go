package handler

import (
    "errors"   // for errors.Is comparisons
    "net/http" // HTTP status codes
    "strings"  // trimming request fields

    "github.com/google/uuid"      // device identifiers
    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/mariia-hub/booking-engine/internal/model"      // device model
    "github.com/mariia-hub/booking-engine/internal/repository" // device persistence
)

// DeviceHandler manages the registry of devices that receive booking
// notifications.  Registration is open: a device belongs to whichever
// user ID it declares, and deactivation rather than deletion keeps the
// delivery audit trail intact.
type DeviceHandler struct {
    Devices *repository.DeviceRepo // device persistence
}

// NewDeviceHandler constructs a DeviceHandler.  The repository must be
// non-nil.
func NewDeviceHandler(devices *repository.DeviceRepo) *DeviceHandler {
    if devices == nil {
        panic("nil repository passed to NewDeviceHandler")
    }
    return &DeviceHandler{Devices: devices}
}

// Register handles POST /v1/devices.  The body declares the owning user,
// the platform and an optional push address.  Unknown platforms are
// accepted and recorded: the dispatcher marks their deliveries as
// unsupported instead of rejecting the device, so the audit trail shows
// why nothing arrived.
func (h *DeviceHandler) Register(c echo.Context) error {
    var body struct {
        UserID      string  `json:"user_id"`
        Platform    string  `json:"platform"`
        PushAddress *string `json:"push_address"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    userID := strings.TrimSpace(body.UserID)
    platform := strings.ToLower(strings.TrimSpace(body.Platform))
    if userID == "" || platform == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id and platform are required"})
    }
    d := &model.Device{
        ID:          uuid.New(),
        UserID:      userID,
        Platform:    platform,
        PushAddress: body.PushAddress,
        IsActive:    true,
    }
    if err := h.Devices.Create(c.Request().Context(), d); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusCreated, d)
}

// Deactivate handles DELETE /v1/devices/:id.  The device row survives so
// past delivery records keep a referent; it simply stops being a fan-out
// target.  Deactivating an unknown device returns 404.
func (h *DeviceHandler) Deactivate(c echo.Context) error {
    id, err := uuid.Parse(c.Param("id"))
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid device id"})
    }
    if err := h.Devices.Deactivate(c.Request().Context(), id); err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "device not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.NoContent(http.StatusNoContent)
}

// SetQuietHours handles PUT /v1/devices/:id/quiet-hours.  The window is
// expressed as minutes from midnight UTC; start and end must be set
// together or omitted together, and a window whose end precedes its start
// wraps past midnight.  `do_not_disturb` silences the device outright
// regardless of any window.
func (h *DeviceHandler) SetQuietHours(c echo.Context) error {
    id, err := uuid.Parse(c.Param("id"))
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid device id"})
    }
    var body struct {
        QuietStartMin *int `json:"quiet_start_min"`
        QuietEndMin   *int `json:"quiet_end_min"`
        DoNotDisturb  bool `json:"do_not_disturb"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if (body.QuietStartMin == nil) != (body.QuietEndMin == nil) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "quiet_start_min and quiet_end_min must be set together"})
    }
    for _, v := range []*int{body.QuietStartMin, body.QuietEndMin} {
        if v != nil && (*v < 0 || *v > 1439) {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "quiet minutes must be between 0 and 1439"})
        }
    }
    if err := h.Devices.SetQuietHours(c.Request().Context(), id, body.QuietStartMin, body.QuietEndMin, body.DoNotDisturb); err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "device not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    d, err := h.Devices.GetByID(c.Request().Context(), id)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, d)
}
