package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	Store  StoreConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Signal SignalConfig
}

type AppConfig struct {
	Env  string
	Port int
}

// StoreConfig selects the persistence backend.
// Accepts: postgres, memory. memory is refused in production.
type StoreConfig struct {
	Driver string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// MaxOpenConns caps the pool; 0 keeps the driver default.
	MaxOpenConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// SocketTicketTTL bounds the single-path tickets handed to WebSocket
	// clients in place of an access token in the URL.
	SocketTicketTTL time.Duration
}

// SignalConfig tunes the WebSocket layer.
type SignalConfig struct {
	// StoreTimeout bounds every repository call made from a connection goroutine.
	StoreTimeout time.Duration
	// LeaveTimeout bounds the user_left broadcast and presence update on teardown.
	LeaveTimeout time.Duration
	// MaxConnsPerUser caps simultaneous sockets per user. 0 disables the cap.
	MaxConnsPerUser int
	// StrictRoomAccess disables the "any active match" fallback for rooms that
	// do not exist yet.
	StrictRoomAccess bool
	// AllowedOrigins restricts the WebSocket Origin header. Empty allows any
	// origin outside production.
	AllowedOrigins []string
}

// Load reads the process environment. Every malformed variable is reported,
// not only the first.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	env := envReader{getenv: getenv}
	c := Config{}

	c.App.Env = env.str("APP_ENV")
	c.App.Port = env.requiredInt("APP_PORT")

	c.Store.Driver = strings.ToLower(env.str("STORE_DRIVER"))

	if c.usesExternalStores() {
		c.DB.Host = env.str("DB_HOST")
		c.DB.Port = env.requiredInt("DB_PORT")
		c.DB.User = env.str("DB_USER")
		c.DB.Password = getenv("DB_PASSWORD")
		c.DB.Name = env.str("DB_NAME")
		c.DB.SSLMode = env.str("DB_SSLMODE")
		c.DB.MaxOpenConns = env.optionalInt("DB_MAX_OPEN_CONNS", 0)

		c.Redis.Host = env.str("REDIS_HOST")
		c.Redis.Port = env.requiredInt("REDIS_PORT")
		c.Redis.Password = getenv("REDIS_PASSWORD")
		c.Redis.DB = env.optionalInt("REDIS_DB", 0)
	}

	c.Auth.JWTSecret = getenv("JWT_SECRET")
	c.Auth.JWTIssuer = env.str("JWT_ISSUER")
	c.Auth.JWTAudience = env.str("JWT_AUDIENCE")
	// Unset durations stay 0; Validate fills the defaults.
	c.Auth.AccessTokenTTL = env.duration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = env.duration("JWT_REFRESH_TTL")
	c.Auth.SocketTicketTTL = env.duration("JWT_SOCKET_TICKET_TTL")

	c.Signal.StoreTimeout = env.duration("SIGNAL_STORE_TIMEOUT")
	c.Signal.LeaveTimeout = env.duration("SIGNAL_LEAVE_TIMEOUT")
	// -1 asks Validate for the default cap; 0 is an explicit "no cap".
	c.Signal.MaxConnsPerUser = env.optionalInt("SIGNAL_MAX_CONNS_PER_USER", -1)
	c.Signal.StrictRoomAccess = env.boolean("SIGNAL_STRICT_ROOM_ACCESS")
	c.Signal.AllowedOrigins = splitList(getenv("SIGNAL_ALLOWED_ORIGINS"))

	if err := joinErrors(env.errs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults. It has a pointer
// receiver so the defaults stick.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.Store.Driver == "" {
		c.Store.Driver = "postgres"
	}
	switch c.Store.Driver {
	case "postgres":
	case "memory":
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_DRIVER=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be one of postgres, memory, got %q", c.Store.Driver))
	}

	if c.usesExternalStores() {
		errs = append(errs, c.validateDB()...)
		errs = append(errs, c.validateRedis()...)
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}
	if c.Auth.SocketTicketTTL <= 0 {
		c.Auth.SocketTicketTTL = time.Minute
	}
	if c.Auth.SocketTicketTTL > c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_SOCKET_TICKET_TTL must not exceed JWT_ACCESS_TTL"))
	}

	if c.Signal.StoreTimeout <= 0 {
		c.Signal.StoreTimeout = 3 * time.Second
	}
	if c.Signal.LeaveTimeout <= 0 {
		c.Signal.LeaveTimeout = 2 * time.Second
	}
	if c.Signal.MaxConnsPerUser < 0 {
		c.Signal.MaxConnsPerUser = 4
	}
	if c.IsProduction() && len(c.Signal.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("SIGNAL_ALLOWED_ORIGINS is required in production"))
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.MaxOpenConns < 0 {
		errs = append(errs, fmt.Errorf("DB_MAX_OPEN_CONNS must be >= 0, got %d", c.DB.MaxOpenConns))
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c *Config) validateRedis() []error {
	var errs []error
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("REDIS_DB must be >= 0, got %d", c.Redis.DB))
	}
	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

// IsDevelopment reports whether developer conveniences (token issuance,
// in-memory stores) may be enabled.
func (c Config) IsDevelopment() bool {
	return c.App.Env == "local" || c.App.Env == "dev"
}

func (c Config) usesExternalStores() bool {
	return c.Store.Driver == "" || c.Store.Driver == "postgres"
}

// UsesMemoryStore reports whether repositories live in process memory.
func (c Config) UsesMemoryStore() bool {
	return c.Store.Driver == "memory"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// envReader trims values and collects parse errors so Load can report
// them together.
type envReader struct {
	getenv func(string) string
	errs   []error
}

func (r *envReader) str(key string) string {
	return strings.TrimSpace(r.getenv(key))
}

func (r *envReader) requiredInt(key string) int {
	v := r.str(key)
	if v == "" {
		r.errs = append(r.errs, fmt.Errorf("%s is required", key))
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n
}

func (r *envReader) optionalInt(key string, def int) int {
	v := r.str(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return def
	}
	return n
}

func (r *envReader) duration(key string) time.Duration {
	v := r.str(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a duration like 30s, got %q", key, v))
		return 0
	}
	return d
}

func (r *envReader) boolean(key string) bool {
	v := r.str(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a bool, got %q", key, v))
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
