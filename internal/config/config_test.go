package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_ReportsMissingRequired(t *testing.T) {
	// Ensure a clean env by not setting anything and calling validation directly.
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := Config{
		App:    AppConfig{Env: "production", Port: 8080},
		DB:     DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "langswap", SSLMode: ""},
		Redis:  RedisConfig{Host: "localhost", Port: 6379},
		Auth:   AuthConfig{JWTSecret: "secret", JWTIssuer: "iss", JWTAudience: "aud"},
		Signal: SignalConfig{AllowedOrigins: []string{"https://app.example"}},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "langswap", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Store.Driver != "postgres" {
		t.Fatalf("expected postgres driver default, got %q", c.Store.Driver)
	}
	if c.Signal.StoreTimeout != 3*time.Second || c.Signal.LeaveTimeout != 2*time.Second {
		t.Fatalf("unexpected signal timeouts: %+v", c.Signal)
	}
}

func TestValidate_MemoryStoreSkipsDatabase(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "dev", Port: 8080},
		Store: StoreConfig{Driver: "memory"},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_MemoryStoreRefusedInProduction(t *testing.T) {
	c := Config{
		App:    AppConfig{Env: "production", Port: 8080},
		Store:  StoreConfig{Driver: "memory"},
		Auth:   AuthConfig{JWTSecret: "secret", JWTIssuer: "iss", JWTAudience: "aud"},
		Signal: SignalConfig{AllowedOrigins: []string{"https://app.example"}},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for memory store in production")
	}
}

func TestLoad_ReadsSignalSettings(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SIGNAL_STORE_TIMEOUT", "750ms")
	t.Setenv("SIGNAL_MAX_CONNS_PER_USER", "2")
	t.Setenv("SIGNAL_STRICT_ROOM_ACCESS", "true")
	t.Setenv("SIGNAL_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Signal.StoreTimeout != 750*time.Millisecond {
		t.Fatalf("expected 750ms store timeout, got %v", c.Signal.StoreTimeout)
	}
	if c.Signal.MaxConnsPerUser != 2 || !c.Signal.StrictRoomAccess {
		t.Fatalf("unexpected signal config: %+v", c.Signal)
	}
	if len(c.Signal.AllowedOrigins) != 2 || c.Signal.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", c.Signal.AllowedOrigins)
	}
}

func TestLoad_DefaultConnCap(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SIGNAL_MAX_CONNS_PER_USER", "")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Signal.MaxConnsPerUser != 4 {
		t.Fatalf("expected default cap 4, got %d", c.Signal.MaxConnsPerUser)
	}
}

func TestValidate_SocketTicketTTL(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "local", Port: 8080},
		Store: StoreConfig{Driver: "memory"},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Auth.SocketTicketTTL != time.Minute {
		t.Fatalf("expected 1m socket ticket default, got %s", c.Auth.SocketTicketTTL)
	}

	c.Auth.SocketTicketTTL = time.Hour
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for a ticket outliving the access token")
	}
}

func mapEnv(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_ReportsEveryMalformedValue(t *testing.T) {
	_, err := load(mapEnv(map[string]string{
		"APP_ENV":                   "local",
		"APP_PORT":                  "eighty",
		"STORE_DRIVER":              "memory",
		"JWT_SECRET":                "secret",
		"JWT_ACCESS_TTL":            "forever",
		"SIGNAL_STRICT_ROOM_ACCESS": "maybe",
	}))
	if err == nil {
		t.Fatalf("expected parse errors")
	}
	for _, key := range []string{"APP_PORT", "JWT_ACCESS_TTL", "SIGNAL_STRICT_ROOM_ACCESS"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s in %q", key, err.Error())
		}
	}
}

func TestLoad_ExternalStores(t *testing.T) {
	c, err := load(mapEnv(map[string]string{
		"APP_ENV":           "dev",
		"APP_PORT":          "8080",
		"DB_HOST":           "db",
		"DB_PORT":           "5432",
		"DB_USER":           "langswap",
		"DB_NAME":           "langswap",
		"DB_MAX_OPEN_CONNS": "10",
		"REDIS_HOST":        "cache",
		"REDIS_PORT":        "6379",
		"REDIS_DB":          "2",
		"JWT_SECRET":        "secret",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Store.Driver != "postgres" || c.DB.MaxOpenConns != 10 || c.Redis.DB != 2 {
		t.Fatalf("unexpected config: %+v", c)
	}
	if c.RedisAddr() != "cache:6379" {
		t.Fatalf("unexpected redis addr %q", c.RedisAddr())
	}
}
