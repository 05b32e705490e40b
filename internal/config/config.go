package config // package config loads application configuration from environment variables

import (
    "errors"   // errors aggregates missing-variable failures
    "fmt"      // fmt formats configuration errors
    "os"       // os provides access to environment variables
    "strconv"  // strconv converts strings to other types
    "strings"  // strings normalizes enum-like values
    "time"     // time expresses token lifetimes

    "github.com/joho/godotenv"  // godotenv loads a local .env file into the process environment
    "github.com/rs/zerolog/log" // zerolog global logger used to report fatal configuration errors
)

// Store drivers accepted in STORE_DRIVER.
const (
    DriverMongo  = "mongo"
    DriverMySQL  = "mysql"
    DriverMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The struct is built once at start-up and passed by
// value into constructors; nothing in the application mutates it afterwards.
type Config struct {
    Env  string // application environment (e.g. "dev", "prod")
    Port string // HTTP port to listen on

    StoreDriver string // mongo | mysql | memory
    MongoURI    string // MongoDB connection string
    MongoDB     string // MongoDB database name
    DBUser      string // MySQL username
    DBPass      string // MySQL password (optional)
    DBHost      string // MySQL host address
    DBPort      string // MySQL port number
    DBName      string // MySQL database name

    JWTKey  string // HMAC key used to sign tokens
    EncKey  string // secret the payload cipher key is derived from
    EncIV   string // secret the payload cipher IV is derived from
    EncSalt string // salt for both derivations

    TokenTTL       time.Duration // lifetime of issued tokens and of the session cookie
    CookieSecure   bool          // adds the Secure attribute to the session cookie
    CookieSameSite string        // lax | strict | none
    BcryptCost     int           // bcrypt cost for password hashing

    DefaultRole string // role assigned to new users that do not name one

    AMQPURL   string // broker URL for account events; empty disables publishing
    LogLevel  string // zerolog level
    LogFormat string // json | console
}

// Load reads configuration values from a .env file (when present) and the
// process environment.  Missing required secrets cause the program to exit
// with a fatal log message.
func Load() Config {
    // A missing .env file is normal in containers; real errors are reported.
    if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
        log.Warn().Err(err).Msg("config: could not parse .env file")
    }
    cfg, err := LoadFrom(os.LookupEnv)
    if err != nil {
        log.Fatal().Err(err).Msg("config: invalid configuration")
    }
    return cfg
}

// LoadFrom builds a Config using the supplied lookup function instead of the
// process environment.  It returns an error listing every missing or invalid
// variable rather than exiting.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
    r := reader{lookup: lookup}
    cfg := Config{
        Env:  r.str("APP_ENV", "dev"),
        Port: r.str("APP_PORT", "3000"),

        StoreDriver: strings.ToLower(r.str("STORE_DRIVER", DriverMongo)),
        MongoURI:    r.str("DB_URI", "mongodb://localhost:27017"),
        MongoDB:     r.str("DB_NAME", "igotyouboo"),
        DBUser:      r.str("DB_USER", "root"),
        DBPass:      r.str("DB_PASS", ""),
        DBHost:      r.str("DB_HOST", "localhost"),
        DBPort:      r.str("DB_PORT", "3306"),
        DBName:      r.str("DB_NAME", "igotyouboo"),

        JWTKey:  r.must("JWT_KEY"),
        EncKey:  r.must("ENC_KEY"),
        EncIV:   r.must("ENC_IV"),
        EncSalt: r.must("ENC_SALT"),

        TokenTTL:       time.Duration(r.integer("TOKEN_TTL_DAYS", 14)) * 24 * time.Hour,
        CookieSecure:   r.boolean("COOKIE_SECURE", false),
        CookieSameSite: strings.ToLower(r.str("COOKIE_SAMESITE", "lax")),
        BcryptCost:     r.integer("BCRYPT_COST", 12),

        DefaultRole: r.str("DEFAULT_ROLE", "Superstar"),

        AMQPURL:   r.str("RABBITMQ_URL", r.str("AMQP_URL", "")),
        LogLevel:  r.str("LOG_LEVEL", "info"),
        LogFormat: r.str("LOG_FORMAT", "json"),
    }

    switch cfg.StoreDriver {
    case DriverMongo, DriverMySQL, DriverMemory:
    default:
        r.errs = append(r.errs, fmt.Errorf("invalid STORE_DRIVER: %q", cfg.StoreDriver))
    }
    if cfg.TokenTTL <= 0 {
        r.errs = append(r.errs, errors.New("TOKEN_TTL_DAYS must be positive"))
    }
    if len(r.errs) > 0 {
        return Config{}, errors.Join(r.errs...)
    }
    return cfg, nil
}

// reader wraps a lookup function and collects every problem it sees so that
// one start-up attempt reports all missing variables at once.
type reader struct {
    lookup func(string) (string, bool)
    errs   []error
}

// must retrieves the value of a required variable.  Unset or empty values
// are recorded as errors.
func (r *reader) must(key string) string {
    v, ok := r.lookup(key)
    if !ok || v == "" {
        r.errs = append(r.errs, fmt.Errorf("missing required env var: %s", key))
    }
    return v
}

func (r *reader) str(key, def string) string {
    if v, ok := r.lookup(key); ok && v != "" {
        return v
    }
    return def
}

// integer is like str() but converts the value.  Unparsable input is an
// error, not a silent fallback.
func (r *reader) integer(key string, def int) int {
    v, ok := r.lookup(key)
    if !ok || v == "" {
        return def
    }
    n, err := strconv.Atoi(v)
    if err != nil {
        r.errs = append(r.errs, fmt.Errorf("invalid int for %s: %q", key, v))
        return def
    }
    return n
}

func (r *reader) boolean(key string, def bool) bool {
    v, ok := r.lookup(key)
    if !ok || v == "" {
        return def
    }
    b, err := strconv.ParseBool(v)
    if err != nil {
        r.errs = append(r.errs, fmt.Errorf("invalid bool for %s: %q", key, v))
        return def
    }
    return b
}
