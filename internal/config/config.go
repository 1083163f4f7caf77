package config // package config loads application configuration from environment variables

import (
    "log"      // log is used to report configuration errors and halt execution
    "os"       // os provides access to environment variables
    "time"     // time parses duration-valued settings
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints and durations
// for horizons and intervals.
type Config struct {
    Env             string        // application environment (e.g. "dev", "prod")
    Port            string        // HTTP port to listen on
    DBUser          string        // database username
    DBPass          string        // database password (optional)
    DBHost          string        // database host address
    DBPort          string        // database port number
    DBName          string        // database name
    JWTSecret       string        // secret used to verify admin JWTs
    HorizonDays     int           // how far ahead availability is generated
    ClaimWait       time.Duration // max time a reservation waits on a contended slot
    SyncInterval    time.Duration // period between full external reconciliation runs
    ExternalBaseURL string        // base URL of the external scheduling platform (empty disables sync)
    ExternalAPIKey  string        // bearer token for the external platform API
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Sync settings are
// optional: without EXTERNAL_BASE_URL the reconciliation loop stays off.
func Load() Config {
    return Config{
        Env:             must("APP_ENV"),               // environment (dev/test/prod)
        Port:            must("APP_PORT"),              // port to bind the HTTP server
        DBUser:          must("DB_USER"),               // database user
        DBPass:          os.Getenv("DB_PASS"),          // database password (empty allowed)
        DBHost:          must("DB_HOST"),               // database host
        DBPort:          must("DB_PORT"),               // database port
        DBName:          must("DB_NAME"),               // database name
        JWTSecret:       must("JWT_SECRET"),            // secret used for verifying admin JWTs
        HorizonDays:     envInt("BOOKING_HORIZON_DAYS", 14),
        ClaimWait:       envDur("CLAIM_WAIT", 3*time.Second),
        SyncInterval:    envDur("SYNC_INTERVAL", 10*time.Minute),
        ExternalBaseURL: os.Getenv("EXTERNAL_BASE_URL"),
        ExternalAPIKey:  os.Getenv("EXTERNAL_API_KEY"),
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}
