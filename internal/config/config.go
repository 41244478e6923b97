package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "time"    // time parses the appearance window duration
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints for versions,
// durations for windows.
type Config struct {
    Env            string        // application environment (e.g. "dev", "prod")
    Port           string        // HTTP port to listen on
    DBUser         string        // database username
    DBPass         string        // database password (optional)
    DBHost         string        // database host address
    DBPort         string        // database port number
    DBName         string        // database name
    JWTSecret      string        // secret used to verify bearer tokens
    ClientVersion  int           // current client version; 0 disables the newer-client check
    MerchantData   string        // path to the merchant/server catalog JSON file
    IdentityMode   string        // weak identity strategy: "real_ip" or "connection"
    WindowDuration time.Duration // how long a merchant appearance window stays open
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  CLIENT_VERSION and
// IDENTITY_MODE are optional because sensible fallbacks exist (no version
// check, real-IP fingerprinting).
func Load() Config {
    return Config{
        Env:            must("APP_ENV"),      // environment (dev/test/prod)
        Port:           must("APP_PORT"),     // port to bind the HTTP server
        DBUser:         must("DB_USER"),      // database user
        DBPass:         os.Getenv("DB_PASS"), // database password (empty allowed)
        DBHost:         must("DB_HOST"),      // database host
        DBPort:         must("DB_PORT"),      // database port
        DBName:         must("DB_NAME"),      // database name
        JWTSecret:      must("JWT_SECRET"),   // secret used for verifying JWTs
        ClientVersion:  optionalInt("CLIENT_VERSION", 0),
        MerchantData:   must("MERCHANT_DATA"), // catalog data file path
        IdentityMode:   os.Getenv("IDENTITY_MODE"),
        WindowDuration: optionalDuration("APPEARANCE_WINDOW", 25*time.Minute),
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

// optionalInt reads an integer environment variable, returning the default
// when the variable is unset.  A malformed value is fatal so that typos do
// not silently disable behaviour.
func optionalInt(key string, def int) int {
    s := os.Getenv(key)
    if s == "" {
        return def
    }
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}

// optionalDuration reads a duration environment variable (Go duration
// syntax, e.g. "25m"), returning the default when unset.
func optionalDuration(key string, def time.Duration) time.Duration {
    s := os.Getenv(key)
    if s == "" {
        return def
    }
    d, err := time.ParseDuration(s)
    if err != nil {
        log.Fatalf("invalid duration for %s: %q", key, s)
    }
    return d
}
