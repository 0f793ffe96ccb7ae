package config // package config loads application configuration from environment variables

import (
	"encoding/hex"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Durations that the wire contract expresses in
// milliseconds are converted once here so the rest of the code only sees
// time.Duration.
type Config struct {
	Env      string // application environment (e.g. "dev", "prod")
	Port     string // HTTP port to listen on
	LogLevel string // zap level name; empty means "info"

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	ClientURL          string        // base URL embedded into confirmation/reset links
	CORSAllowedMethods []string      // methods advertised by the CORS filter
	CORSAllowedHeaders []string      // headers advertised by the CORS filter
	MaxLoginAttempts   int           // failed logins before the account locks
	JWTKey             []byte        // HMAC-SHA256 signing key, decoded from hex
	AccessTokenTTL     time.Duration // access token validity
	RefreshTokenTTL    time.Duration // refresh token validity

	SMTPHost string // outbound mail host
	SMTPPort string // outbound mail port
	SMTPUser string // SMTP auth user (optional; empty disables AUTH)
	SMTPPass string // SMTP auth password
	MailFrom string // From address on outbound mail
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing or invalid
// values cause the program to exit with a fatal log message.  In particular
// a JWT_SECRET that is not valid hex is fatal: starting up with an unusable
// signing key would make every token unverifiable.
func Load() Config {
	key, err := hex.DecodeString(must("JWT_SECRET"))
	if err != nil {
		log.Fatalf("JWT_SECRET is not valid hex: %v", err)
	}

	maxAttempts := mustInt("MAX_LOGIN_ATTEMPTS")
	if maxAttempts <= 0 {
		log.Fatalf("MAX_LOGIN_ATTEMPTS must be positive, got %d", maxAttempts)
	}

	return Config{
		Env:      must("APP_ENV"),
		Port:     must("APP_PORT"),
		LogLevel: os.Getenv("LOG_LEVEL"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		ClientURL:          must("CLIENT_URL"),
		CORSAllowedMethods: splitList(must("CORS_ALLOWED_METHODS")),
		CORSAllowedHeaders: splitList(must("CORS_ALLOWED_HEADERS")),
		MaxLoginAttempts:   maxAttempts,
		JWTKey:             key,
		AccessTokenTTL:     time.Duration(mustInt64("ACCESS_TOKEN_VALIDITY_MS")) * time.Millisecond,
		RefreshTokenTTL:    time.Duration(mustInt64("REFRESH_TOKEN_VALIDITY_MS")) * time.Millisecond,

		SMTPHost: must("SMTP_HOST"),
		SMTPPort: must("SMTP_PORT"),
		SMTPUser: os.Getenv("SMTP_USER"),
		SMTPPass: os.Getenv("SMTP_PASS"),
		MailFrom: must("MAIL_FROM"),
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

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// mustInt64 is like mustInt for 64-bit values (millisecond validities).
func mustInt64(key string) int64 {
	s := must(key)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// splitList parses a comma-separated env value into trimmed entries.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
