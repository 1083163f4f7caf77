package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4" // import the Echo web framework to handle routing
    "github.com/redis/go-redis/v9"

    "github.com/mariia-hub/booking-engine/internal/config"     // cache and rate-limit settings
    "github.com/mariia-hub/booking-engine/internal/handler"    // import the handlers that implement business logic
    "github.com/mariia-hub/booking-engine/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// Handlers bundles every handler the router wires up so main only passes
// one value.  All fields are required except Sync, which is nil when no
// external platform is configured; its routes are then not registered and
// the webhook answers 404.
type Handlers struct {
    Availability *handler.AvailabilityHandler
    Booking      *handler.BookingHandler
    Device       *handler.DeviceHandler
    Template     *handler.TemplateHandler
    AdminBooking *handler.AdminBookingHandler
    Conflict     *handler.ConflictHandler
    Sync         *handler.SyncHandler
}

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
    // Map the GET request at path "/healthz" to the Health handler.  This
    // endpoint can be used by load balancers or monitoring systems to verify
    // that the service is up and running.
    e.GET("/healthz", handler.Health)
}

// RegisterPublic registers the customer-facing routes.  Availability sits
// behind the Redis response cache; the reservation mutations sit behind
// the token-bucket rate limiter so a burst of retries from one client
// cannot starve the slot-lock queue for everyone else.  Both middlewares
// degrade to pass-through when Redis is absent.
func RegisterPublic(e *echo.Echo, h Handlers, rdb *redis.Client) {
    cacheCfg := config.LoadCacheConfig()
    rlCfg := config.LoadRateLimitConfig()

    // Availability is read-only and cacheable; the ledger invalidates the
    // cache on every mutation so the TTL is an upper bound, not the
    // freshness guarantee.
    e.GET("/v1/availability", h.Availability.List, middleware.NewRedisCache(cacheCfg, rdb))

    // Reservation lifecycle.  Rate-limited per client.
    limited := middleware.NewTokenBucket(rlCfg, rdb)
    e.POST("/v1/bookings", h.Booking.Reserve, limited)
    e.POST("/v1/bookings/reschedule", h.Booking.Reschedule, limited)
    e.POST("/v1/bookings/cancel", h.Booking.Cancel, limited)

    // Device sync: the pull side of catch-up plus device registry upkeep.
    e.GET("/v1/customers/:id/bookings", h.Booking.ListByCustomer)
    e.POST("/v1/devices", h.Device.Register)
    e.DELETE("/v1/devices/:id", h.Device.Deactivate)
    e.PUT("/v1/devices/:id/quiet-hours", h.Device.SetQuietHours)

    // Inbound change notifications from the external platform.
    if h.Sync != nil {
        e.POST("/v1/external/webhook", h.Sync.Webhook)
    }
}

// RegisterAdmin registers the staff-side routes under /v1/admin.  Every
// route requires a valid access token carrying the ADMIN role; tokens are
// issued by the surrounding platform, this service only verifies them.
func RegisterAdmin(e *echo.Echo, h Handlers, jwtSecret string) {
    g := e.Group("/v1/admin")
    // Apply the JWTAuth middleware to the protected group using the provided secret.
    g.Use(middleware.JWTAuth(jwtSecret))
    g.Use(middleware.RequireRole("ADMIN"))

    // Weekly availability templates.  Soft-disable instead of delete.
    g.POST("/templates", h.Template.Create)
    g.GET("/templates", h.Template.List)
    g.GET("/templates/:id", h.Template.Get)
    g.PUT("/templates/:id", h.Template.Update)
    g.POST("/templates/:id/disable", h.Template.SetDisabled(true))
    g.POST("/templates/:id/enable", h.Template.SetDisabled(false))

    // Booking lifecycle transitions that require staff action.
    g.GET("/bookings/:id", h.AdminBooking.Get)
    g.POST("/bookings/:id/confirm", h.AdminBooking.Confirm)
    g.POST("/bookings/:id/complete", h.AdminBooking.Complete)

    // Reconciliation backlog and triggers.
    if h.Conflict != nil {
        g.GET("/conflicts", h.Conflict.List)
        g.POST("/conflicts/:id/resolve", h.Conflict.Resolve)
    }
    if h.Sync != nil {
        g.POST("/sync/run", h.Sync.RunFull)
    }
}
