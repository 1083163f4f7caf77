package handler

import (
    "errors"   // for errors.Is comparisons
    "net/http" // HTTP status codes
    "strconv"  // parsing query parameters

    "github.com/google/uuid"      // conflict identifiers
    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/mariia-hub/booking-engine/internal/extsync"    // reconciliation engine
    "github.com/mariia-hub/booking-engine/internal/model"      // conflict model
    "github.com/mariia-hub/booking-engine/internal/repository" // conflict persistence
)

// ConflictHandler exposes the reconciliation backlog to administrators.
// Conflicts are only ever raised by the sync engine; this handler lists
// the pending ones and applies resolution decisions.  Double-claims are
// deliberately never auto-resolved, so this surface is the sole path to
// clearing them.
type ConflictHandler struct {
    Conflicts *repository.ConflictRepo // pending-conflict listing
    Engine    *extsync.Engine          // applies resolution policies
}

// NewConflictHandler constructs a ConflictHandler.  Both dependencies
// must be non-nil.
func NewConflictHandler(conflicts *repository.ConflictRepo, engine *extsync.Engine) *ConflictHandler {
    if conflicts == nil || engine == nil {
        panic("nil dependency passed to NewConflictHandler")
    }
    return &ConflictHandler{Conflicts: conflicts, Engine: engine}
}

// List handles GET /v1/admin/conflicts.  Only pending conflicts are
// returned, oldest first, so the backlog is worked in discovery order.
func (h *ConflictHandler) List(c echo.Context) error {
    limit := 0
    if v := c.QueryParam("limit"); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil || n < 1 {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
        }
        limit = n
    }
    conflicts, err := h.Conflicts.ListPending(c.Request().Context(), limit)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"conflicts": conflicts, "count": len(conflicts)})
}

// Resolve handles POST /v1/admin/conflicts/:id/resolve.  The body names a
// resolution policy: prefer_local keeps our booking and cancels the
// external claim, prefer_external does the reverse, manual archives the
// record after an out-of-band fix.  Double-claim conflicts only accept
// manual; automatic policies come back as 409.  Resolving an
// already-resolved conflict returns 200 with the archived record
// unchanged.  If the
// external platform is unreachable the decision is not applied and the
// conflict stays pending; 502 tells the admin to retry later.
func (h *ConflictHandler) Resolve(c echo.Context) error {
    id, err := uuid.Parse(c.Param("id"))
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid conflict id"})
    }
    var body struct {
        Resolution string `json:"resolution"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    res := model.Resolution(body.Resolution)
    switch res {
    case model.ResolvePreferLocal, model.ResolvePreferExternal, model.ResolveManual:
    default:
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "resolution must be prefer_local, prefer_external or manual"})
    }
    rec, err := h.Engine.Resolve(c.Request().Context(), id, res)
    if err != nil {
        switch {
        case errors.Is(err, repository.ErrNotFound):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "conflict not found"})
        case errors.Is(err, extsync.ErrManualResolutionRequired):
            return c.JSON(http.StatusConflict, echo.Map{"error": "double claim requires manual resolution"})
        case errors.Is(err, extsync.ErrExternalUnreachable):
            return c.JSON(http.StatusBadGateway, echo.Map{"error": "external platform unreachable, resolution not applied"})
        default:
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
        }
    }
    return c.JSON(http.StatusOK, rec)
}
