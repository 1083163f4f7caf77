package main // Entry point package

import (
	"context" // Lifetime control for background loops
	"log"     // Logging library
	"time"    // Scheduler cadence

	"github.com/joho/godotenv"    // Loads .env files in development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/mariia-hub/booking-engine/internal/availability" // Slot generation and free-slot resolution
	"github.com/mariia-hub/booking-engine/internal/config"       // Internal config loader
	"github.com/mariia-hub/booking-engine/internal/database"     // MySQL connection pool
	"github.com/mariia-hub/booking-engine/internal/extsync"      // External platform reconciliation
	"github.com/mariia-hub/booking-engine/internal/fanout"       // Device notification dispatch
	"github.com/mariia-hub/booking-engine/internal/handler"      // HTTP handlers
	"github.com/mariia-hub/booking-engine/internal/ledger"       // Atomic reservation ledger
	"github.com/mariia-hub/booking-engine/internal/middleware"   // Cache invalidation hook
	"github.com/mariia-hub/booking-engine/internal/queue"        // RabbitMQ event plumbing
	"github.com/mariia-hub/booking-engine/internal/repository"   // Data access layer
	"github.com/mariia-hub/booking-engine/internal/router"       // Internal router setup
)

func main() {
	_ = godotenv.Load()  // Load .env if present; real environment variables win
	cfg := config.Load() // Load environment config

	// Open MySQL.  Everything durable lives here: templates, the booking
	// ledger with its slot locks, conflicts, devices and notifications.
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis is optional: without it the response cache and rate limiter
	// become pass-throughs and the invalidator a no-op.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; cache and rate limiting disabled")
	}

	// Repositories.
	templates := repository.NewTemplateRepo(db)
	bookings := repository.NewBookingRepo(db)
	conflicts := repository.NewConflictRepo(db)
	devices := repository.NewDeviceRepo(db)
	notifications := repository.NewNotificationRepo(db)

	// The resolver turns weekly templates into concrete free slots; the
	// ledger uses it to validate claimed keys and the availability
	// endpoint uses it for listings.
	resolver := availability.NewResolver(templates, bookings, nil)

	// The ledger owns every slot mutation.  Each committed mutation drops
	// the availability cache and publishes one event to RabbitMQ.
	led := ledger.New(bookings, resolver,
		ledger.WithEventSink(queue.NewPublisherFromEnv()),
		ledger.WithInvalidator(middleware.NewInvalidator(rdb, config.LoadCacheConfig())),
		ledger.WithClaimWait(cfg.ClaimWait),
	)

	// Notification fan-out.  Deliveries land in a local log file; swap the
	// pusher for a real gateway client without touching the dispatcher.
	dispatcher := fanout.NewDispatcher(devices, notifications, fanout.NewLogPusher("logs"), nil)

	// External reconciliation runs only when a platform is configured.
	var engine *extsync.Engine
	if cfg.ExternalBaseURL != "" {
		client := extsync.NewHTTPClient(cfg.ExternalBaseURL, cfg.ExternalAPIKey)
		engine = extsync.NewEngine(client, bookings, conflicts, led, nil, cfg.HorizonDays)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Consume booking mutation events: every mutation fans out to devices,
	// and each one additionally triggers a slot-scoped reconciliation so
	// local changes reach the external platform without waiting for the
	// next full pass.
	go func() {
		err := queue.StartConsumer(func(ctx context.Context, ev queue.BookingMutated) error {
			if err := dispatcher.HandleMutation(ctx, ev); err != nil {
				return err
			}
			if engine != nil {
				if err := engine.RunIncremental(ctx, ev.Booking.Slot); err != nil {
					log.Printf("incremental sync for %s: %v", ev.Booking.Slot, err)
				}
			}
			return nil
		})
		if err != nil {
			log.Printf("queue consumer stopped: %v", err)
		}
	}()

	// Periodic full reconciliation and the scheduled-notification drain.
	if engine != nil {
		go engine.Run(ctx, cfg.SyncInterval)
	}
	go dispatcher.RunScheduler(ctx, time.Minute)

	// HTTP surface.
	e := echo.New()
	h := router.Handlers{
		Availability: handler.NewAvailabilityHandler(resolver),
		Booking:      handler.NewBookingHandler(led, bookings),
		Device:       handler.NewDeviceHandler(devices),
		Template:     handler.NewTemplateHandler(templates),
		AdminBooking: handler.NewAdminBookingHandler(led),
	}
	if engine != nil {
		h.Conflict = handler.NewConflictHandler(conflicts, engine)
		h.Sync = handler.NewSyncHandler(engine)
	}
	router.RegisterRoutes(e) // Register application routes
	router.RegisterPublic(e, h, rdb)
	router.RegisterAdmin(e, h, cfg.JWTSecret)

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}
