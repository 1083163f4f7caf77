package handler

import (
    "net/http" // HTTP status codes

    "github.com/google/uuid"      // booking identifiers
    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/mariia-hub/booking-engine/internal/ledger" // state-machine transitions
    "github.com/mariia-hub/booking-engine/internal/model"  // booking model
)

// AdminBookingHandler drives the staff-side booking lifecycle: confirming
// a pending booking and marking a confirmed one completed.  Transitions
// run through the ledger so illegal jumps (completing a pending booking,
// confirming a cancelled one) are rejected uniformly.
type AdminBookingHandler struct {
    Ledger *ledger.Ledger
}

// NewAdminBookingHandler constructs an AdminBookingHandler.  The ledger
// must be non-nil.
func NewAdminBookingHandler(l *ledger.Ledger) *AdminBookingHandler {
    if l == nil {
        panic("nil ledger passed to NewAdminBookingHandler")
    }
    return &AdminBookingHandler{Ledger: l}
}

// transition parses the booking ID and applies op, sharing the error
// mapping with the customer-facing handlers.
func (h *AdminBookingHandler) transition(c echo.Context, op func(c echo.Context, id uuid.UUID) (*model.Booking, error)) error {
    id, err := uuid.Parse(c.Param("id"))
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    b, err := op(c, id)
    if err != nil {
        return reservationError(c, err)
    }
    b.RescheduleToken = ""
    return c.JSON(http.StatusOK, b)
}

// Confirm handles POST /v1/admin/bookings/:id/confirm.
func (h *AdminBookingHandler) Confirm(c echo.Context) error {
    return h.transition(c, func(c echo.Context, id uuid.UUID) (*model.Booking, error) {
        return h.Ledger.Confirm(c.Request().Context(), id)
    })
}

// Complete handles POST /v1/admin/bookings/:id/complete.
func (h *AdminBookingHandler) Complete(c echo.Context) error {
    return h.transition(c, func(c echo.Context, id uuid.UUID) (*model.Booking, error) {
        return h.Ledger.Complete(c.Request().Context(), id)
    })
}

// Get handles GET /v1/admin/bookings/:id, returning the full record
// including source and external reference for support inspection.
func (h *AdminBookingHandler) Get(c echo.Context) error {
    id, err := uuid.Parse(c.Param("id"))
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    b, err := h.Ledger.Lookup(c.Request().Context(), id)
    if err != nil {
        return reservationError(c, err)
    }
    b.RescheduleToken = ""
    return c.JSON(http.StatusOK, b)
}
