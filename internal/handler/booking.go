package handler

import (
    "errors"   // for errors.Is comparisons against ledger sentinels
    "net/http" // HTTP status codes
    "strings"  // trimming request fields
    "time"     // parsing slot start timestamps

    "github.com/google/uuid"      // booking and device identifiers
    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/mariia-hub/booking-engine/internal/ledger"     // reservation ledger
    "github.com/mariia-hub/booking-engine/internal/model"      // domain types
    "github.com/mariia-hub/booking-engine/internal/repository" // sentinel errors and customer listing
)

// BookingHandler exposes the customer-facing reservation lifecycle:
// reserve, reschedule, cancel and the per-customer state pull that devices
// use to catch up after reconnecting.  All slot mutations go through the
// ledger, which owns atomicity; the handler's job is request parsing and
// translating ledger sentinels into reason codes the UI can act on.
type BookingHandler struct {
    Ledger   *ledger.Ledger          // atomic claim/release operations
    Bookings *repository.BookingRepo // read-only customer listing
}

// NewBookingHandler constructs a BookingHandler.  Both dependencies must
// be non-nil.
func NewBookingHandler(l *ledger.Ledger, bookings *repository.BookingRepo) *BookingHandler {
    if l == nil || bookings == nil {
        panic("nil dependency passed to NewBookingHandler")
    }
    return &BookingHandler{Ledger: l, Bookings: bookings}
}

// slotKeyBody is the wire shape of a slot key inside request bodies.  The
// start time must be RFC3339; it is normalized to UTC before it reaches
// the ledger so the same instant always produces the same key.
type slotKeyBody struct {
    Location        string `json:"location"`
    StartsAt        string `json:"starts_at"`
    ServiceCategory string `json:"service_category"`
}

// slotKey validates the body fields and builds the canonical key.
func (b *slotKeyBody) slotKey() (model.SlotKey, error) {
    loc := strings.TrimSpace(b.Location)
    cat := strings.TrimSpace(b.ServiceCategory)
    if loc == "" || cat == "" {
        return model.SlotKey{}, errors.New("location and service_category are required")
    }
    at, err := time.Parse(time.RFC3339, b.StartsAt)
    if err != nil {
        return model.SlotKey{}, errors.New("starts_at must be RFC3339")
    }
    return model.SlotKey{Location: loc, StartsAt: at.UTC(), ServiceCategory: cat}, nil
}

// originDevice parses an optional origin_device_id field.  The value is
// advisory: it only shapes the notification fan-out, so a malformed ID is
// treated as absent rather than rejected.
func originDevice(raw string) *uuid.UUID {
    if raw == "" {
        return nil
    }
    id, err := uuid.Parse(raw)
    if err != nil {
        return nil
    }
    return &id
}

// reservationError maps ledger sentinels onto HTTP responses.  Every
// failure carries a machine-readable reason plus a `retry` flag telling
// the client whether re-querying availability and trying again can
// succeed.  CapacityExceeded wraps SlotUnavailable, so it must be checked
// first.
func reservationError(c echo.Context, err error) error {
    switch {
    case errors.Is(err, ledger.ErrSlotInPast):
        return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "slot_in_past", "retry": false})
    case errors.Is(err, ledger.ErrCapacityExceeded):
        return c.JSON(http.StatusConflict, echo.Map{"error": "capacity_exceeded", "retry": true})
    case errors.Is(err, ledger.ErrSlotUnavailable):
        return c.JSON(http.StatusConflict, echo.Map{"error": "slot_unavailable", "retry": true})
    case errors.Is(err, ledger.ErrInvalidToken):
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_token", "retry": false})
    case errors.Is(err, ledger.ErrInvalidTransition):
        return c.JSON(http.StatusConflict, echo.Map{"error": "invalid_transition", "retry": false})
    case errors.Is(err, repository.ErrNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found", "retry": false})
    default:
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
}

// Reserve handles POST /v1/bookings.  The body names the slot key and the
// customer; `confirmed` optionally skips the pending step for flows with
// no separate confirmation.  On success the response is 201 with the full
// booking including its reschedule token — the only time the token is
// ever returned.  Losing a capacity race yields 409 with retry=true: the
// client should re-query availability, the ledger never substitutes a
// different slot.
func (h *BookingHandler) Reserve(c echo.Context) error {
    var body struct {
        slotKeyBody
        CustomerID     string `json:"customer_id"`
        Confirmed      bool   `json:"confirmed"`
        OriginDeviceID string `json:"origin_device_id"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    key, err := body.slotKey()
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    customer := strings.TrimSpace(body.CustomerID)
    if customer == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "customer_id is required"})
    }
    b, err := h.Ledger.Reserve(c.Request().Context(), key, customer, ledger.ReserveOptions{
        Confirmed:    body.Confirmed,
        OriginDevice: originDevice(body.OriginDeviceID),
    })
    if err != nil {
        return reservationError(c, err)
    }
    return c.JSON(http.StatusCreated, b)
}

// Reschedule handles POST /v1/bookings/reschedule.  Possession of the
// reschedule token is the sole authorization; no session is required.
// The old slot is released and the new one claimed in a single atomic
// step, so a failed reschedule leaves the original booking untouched.
// The response carries the replacement booking with a fresh token: the
// old token dies with the old booking.
func (h *BookingHandler) Reschedule(c echo.Context) error {
    var body struct {
        slotKeyBody
        RescheduleToken string `json:"reschedule_token"`
        OriginDeviceID  string `json:"origin_device_id"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if body.RescheduleToken == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "reschedule_token is required"})
    }
    key, err := body.slotKey()
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    b, err := h.Ledger.Reschedule(c.Request().Context(), body.RescheduleToken, key, originDevice(body.OriginDeviceID))
    if err != nil {
        return reservationError(c, err)
    }
    return c.JSON(http.StatusOK, b)
}

// Cancel handles POST /v1/bookings/cancel.  Customers cancel with their
// reschedule token; internal callers may cancel by booking ID instead.
// Cancellation is idempotent: cancelling an already-cancelled booking
// returns 200 with the unchanged record, so clients can safely retry.
func (h *BookingHandler) Cancel(c echo.Context) error {
    var body struct {
        RescheduleToken string `json:"reschedule_token"`
        BookingID       string `json:"booking_id"`
        OriginDeviceID  string `json:"origin_device_id"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    origin := originDevice(body.OriginDeviceID)
    ctx := c.Request().Context()
    var (
        b   *model.Booking
        err error
    )
    switch {
    case body.RescheduleToken != "":
        b, err = h.Ledger.CancelByToken(ctx, body.RescheduleToken, origin)
    case body.BookingID != "":
        id, parseErr := uuid.Parse(body.BookingID)
        if parseErr != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking_id"})
        }
        b, err = h.Ledger.CancelByID(ctx, id, origin)
    default:
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "reschedule_token or booking_id is required"})
    }
    if err != nil {
        return reservationError(c, err)
    }
    b.RescheduleToken = "" // the token is dead once the booking is cancelled
    return c.JSON(http.StatusOK, b)
}

// ListByCustomer handles GET /v1/customers/:id/bookings.  This is the
// pull side of device sync: after reconnecting, a device fetches the
// customer's full booking state instead of relying on replayed pushes.
// Reschedule tokens are stripped; the token is only ever delivered at
// reservation time.
func (h *BookingHandler) ListByCustomer(c echo.Context) error {
    customerID := strings.TrimSpace(c.Param("id"))
    if customerID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid customer id"})
    }
    bookings, err := h.Bookings.ListByCustomer(c.Request().Context(), customerID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    for i := range bookings {
        bookings[i].RescheduleToken = ""
    }
    return c.JSON(http.StatusOK, echo.Map{"bookings": bookings, "count": len(bookings)})
}
