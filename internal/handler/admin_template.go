package handler

import (
    "errors"   // for errors.Is comparisons
    "net/http" // HTTP status codes
    "strconv"  // parsing path parameters

    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/mariia-hub/booking-engine/internal/model"      // template model
    "github.com/mariia-hub/booking-engine/internal/repository" // template persistence
)

// TemplateHandler manages weekly availability templates.  Templates are
// the only source of bookable slots: listing availability expands them on
// the fly, so edits here take effect on the next availability query with
// no regeneration step.  Disabling a template hides its future slots but
// never touches bookings already made from it.
type TemplateHandler struct {
    Templates *repository.TemplateRepo // template persistence
}

// NewTemplateHandler constructs a TemplateHandler.  The repository must
// be non-nil.
func NewTemplateHandler(templates *repository.TemplateRepo) *TemplateHandler {
    if templates == nil {
        panic("nil repository passed to NewTemplateHandler")
    }
    return &TemplateHandler{Templates: templates}
}

// templateBody is the wire shape shared by create and update.
type templateBody struct {
    Location        string `json:"location"`
    ServiceCategory string `json:"service_category"`
    DayOfWeek       int    `json:"day_of_week"`
    StartTime       string `json:"start_time"`
    EndTime         string `json:"end_time"`
    SlotDuration    int    `json:"slot_duration_minutes"`
    Capacity        int    `json:"capacity"`
    Disabled        bool   `json:"disabled"`
}

func (b *templateBody) toModel() model.AvailabilityTemplate {
    capacity := b.Capacity
    if capacity == 0 {
        capacity = 1
    }
    return model.AvailabilityTemplate{
        Location:        b.Location,
        ServiceCategory: b.ServiceCategory,
        DayOfWeek:       b.DayOfWeek,
        StartTime:       b.StartTime,
        EndTime:         b.EndTime,
        SlotDuration:    b.SlotDuration,
        Capacity:        capacity,
        Disabled:        b.Disabled,
    }
}

// Create handles POST /v1/admin/templates.  The template is validated
// structurally before insert; overlap with existing templates is allowed
// and resolved at generation time, where duplicate slot keys collapse
// into one.
func (h *TemplateHandler) Create(c echo.Context) error {
    var body templateBody
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    t := body.toModel()
    if err := t.Validate(); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    if err := h.Templates.Create(c.Request().Context(), &t); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusCreated, t)
}

// Update handles PUT /v1/admin/templates/:id.  The whole template is
// replaced; already-booked slots generated by the old shape keep their
// bookings regardless.
func (h *TemplateHandler) Update(c echo.Context) error {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid template id"})
    }
    var body templateBody
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    t := body.toModel()
    t.ID = id
    if err := t.Validate(); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    if err := h.Templates.Update(c.Request().Context(), &t); err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "template not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, t)
}

// SetDisabled handles POST /v1/admin/templates/:id/disable and .../enable.
// Soft-disable is the supported removal path: templates are never deleted
// because bookings reference them.
func (h *TemplateHandler) SetDisabled(disabled bool) echo.HandlerFunc {
    return func(c echo.Context) error {
        id, err := strconv.ParseUint(c.Param("id"), 10, 64)
        if err != nil || id == 0 {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid template id"})
        }
        if err := h.Templates.SetDisabled(c.Request().Context(), id, disabled); err != nil {
            if errors.Is(err, repository.ErrNotFound) {
                return c.JSON(http.StatusNotFound, echo.Map{"error": "template not found"})
            }
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
        }
        return c.JSON(http.StatusOK, echo.Map{"id": id, "disabled": disabled})
    }
}

// Get handles GET /v1/admin/templates/:id.
func (h *TemplateHandler) Get(c echo.Context) error {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid template id"})
    }
    t, err := h.Templates.GetByID(c.Request().Context(), id)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "template not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, t)
}

// List handles GET /v1/admin/templates.  Unlike the public availability
// view, the admin listing includes disabled templates by default so they
// can be re-enabled.
func (h *TemplateHandler) List(c echo.Context) error {
    includeDisabled := c.QueryParam("include_disabled") != "false"
    ts, err := h.Templates.List(c.Request().Context(), c.QueryParam("location"), c.QueryParam("category"), includeDisabled)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"templates": ts, "count": len(ts)})
}
