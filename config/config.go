package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

type Config struct {
	Port    string
	GinMode string

	StoreDriver   string
	MongoURI      string
	MongoDatabase string

	FirebaseAPIKey         string
	FirebaseServiceAccount string
	IdentityBaseURL        string
	IdentityTimeout        time.Duration

	CloudinaryURL  string
	StorageFolder  string
	UploadMaxBytes int64

	JWTSecret   string
	SessionTTL  time.Duration
	AdminEmails []string
	CORSOrigins []string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	LogFile            string
	LogLevel           string
	RateLimitPerMinute int
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an environment lookup function.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := &Config{
		Port:                   get("PORT", "8080"),
		GinMode:                get("GIN_MODE", "debug"),
		StoreDriver:            strings.ToLower(get("STORE_DRIVER", DriverMongo)),
		MongoURI:               get("MONGODB_URI", ""),
		MongoDatabase:          get("MONGODB_DATABASE", "teamup"),
		FirebaseAPIKey:         get("FIREBASE_API_KEY", ""),
		FirebaseServiceAccount: get("FIREBASE_SERVICE_ACCOUNT", ""),
		IdentityBaseURL:        get("IDENTITY_BASE_URL", "https://identitytoolkit.googleapis.com"),
		CloudinaryURL:          get("CLOUDINARY_URL", ""),
		StorageFolder:          get("STORAGE_FOLDER", "teamup"),
		JWTSecret:              get("JWT_SECRET", ""),
		AdminEmails:            splitList(get("ADMIN_EMAILS", "")),
		CORSOrigins:            splitList(get("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		VAPIDPublicKey:         get("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey:        get("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:           get("VAPID_SUBJECT", "mailto:admin@teamup.local"),
		LogFile:                get("LOG_FILE", ""),
		LogLevel:               get("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.IdentityTimeout, err = time.ParseDuration(get("IDENTITY_TIMEOUT", "10s")); err != nil {
		return nil, fmt.Errorf("IDENTITY_TIMEOUT: %w", err)
	}
	if cfg.SessionTTL, err = time.ParseDuration(get("SESSION_TTL", "24h")); err != nil {
		return nil, fmt.Errorf("SESSION_TTL: %w", err)
	}
	if cfg.UploadMaxBytes, err = strconv.ParseInt(get("UPLOAD_MAX_BYTES", "10485760"), 10, 64); err != nil {
		return nil, fmt.Errorf("UPLOAD_MAX_BYTES: %w", err)
	}
	if cfg.RateLimitPerMinute, err = strconv.Atoi(get("RATE_LIMIT_PER_MINUTE", "120")); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_PER_MINUTE: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("MONGODB_URI is required when STORE_DRIVER=mongo")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.FirebaseAPIKey == "" {
		return errors.New("FIREBASE_API_KEY is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.UploadMaxBytes <= 0 {
		return errors.New("UPLOAD_MAX_BYTES must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must be positive")
	}
	return nil
}

func (c *Config) IsRelease() bool {
	return c.GinMode == "release"
}

// IsAdmin reports whether email is on the admin allow-list.
func (c *Config) IsAdmin(email string) bool {
	email = strings.TrimSpace(email)
	for _, a := range c.AdminEmails {
		if strings.EqualFold(a, email) {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
