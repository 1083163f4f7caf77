package handler

import (
    "errors"   // for errors.Is comparisons
    "net/http" // HTTP status codes
    "strconv"  // parsing query parameters

    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/mariia-hub/booking-engine/internal/availability" // free-slot resolver
)

// AvailabilityHandler exposes the free-slot listing.  The resolver reads
// the ledger at query time, so the response never shows a slot that has
// already been claimed; stale reads can only come from the HTTP cache in
// front of this handler, and the ledger flushes that cache on every
// mutation.
type AvailabilityHandler struct {
    Resolver *availability.Resolver // computes generated-minus-claimed slots
}

// NewAvailabilityHandler constructs an AvailabilityHandler.  The resolver
// must be non-nil.
func NewAvailabilityHandler(r *availability.Resolver) *AvailabilityHandler {
    if r == nil {
        panic("nil resolver passed to NewAvailabilityHandler")
    }
    return &AvailabilityHandler{Resolver: r}
}

// List handles GET /v1/availability.  Optional query parameters narrow the
// result: `location` and `category` filter, `horizon_days` bounds how far
// ahead slots are generated and `limit` caps the response size.  Slots are
// ordered by start time so pagination by re-query is deterministic.  When
// the template or ledger reads fail the client receives 503 and should
// retry; availability is a read model and has no partial-answer mode.
func (h *AvailabilityHandler) List(c echo.Context) error {
    q := availability.Query{
        Location:        c.QueryParam("location"),
        ServiceCategory: c.QueryParam("category"),
    }
    if v := c.QueryParam("horizon_days"); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil || n < 1 {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid horizon_days"})
        }
        q.HorizonDays = n
    }
    if v := c.QueryParam("limit"); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil || n < 1 {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
        }
        q.Limit = n
    }
    slots, err := h.Resolver.ListAvailable(c.Request().Context(), q)
    if err != nil {
        if errors.Is(err, availability.ErrUnavailable) {
            return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "availability temporarily unavailable"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"slots": slots, "count": len(slots)})
}
