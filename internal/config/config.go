// Package config loads bakery settings from defaults, the config file, a .env
// file and BAKERY_* environment variables, in that order of precedence.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Upload  UploadConfig
	Auth    AuthConfig
	Order   OrderConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins string
	StaticDir      string
}

type StorageConfig struct {
	Backend  string
	DataDir  string
	SeedDir  string
	CacheTTL time.Duration
}

type UploadConfig struct {
	Dir      string
	MaxBytes int
}

type AuthConfig struct {
	AdminEmail        string
	AdminPasswordHash string
	// AdminPassword is a plain text password accepted from the environment
	// only; it is hashed at startup.
	AdminPassword string
	JWTSecret     string
	TokenTTL      time.Duration
}

type OrderConfig struct {
	WhatsAppNumber string
}

type LogConfig struct {
	Level  string
	Format string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           3000,
			AllowedOrigins: "*",
		},
		Storage: StorageConfig{
			Backend: "json",
			DataDir: filepath.Join(dataHome(), "data"),
		},
		Upload: UploadConfig{
			Dir:      filepath.Join("public", "images"),
			MaxBytes: 5 << 20,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Order: OrderConfig{
			WhatsAppNumber: "212600000000",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/bakery/config.json, then a .env file in the working
// directory, then BAKERY_* environment variables. Variables already present
// in the environment win over the .env file. The JWT secret falls back to the
// secrets file when no variable provides it.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), fileSecrets{path: secretsFilePath()}, ".env")
}

func loadWith(b ConfigBackend, secrets SecretStore, envFile string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	applyEnvOverrides(&cfg)

	if cfg.Auth.JWTSecret == "" && secrets != nil {
		if v, err := secrets.Get(secretService, jwtSecretAccount); err == nil && v != "" {
			cfg.Auth.JWTSecret = v
		}
	}

	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	var problems []string
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	switch c.Storage.Backend {
	case "json", "sqlite", "memory":
	default:
		problems = append(problems, fmt.Sprintf("storage.backend %q is not one of json, sqlite, memory", c.Storage.Backend))
	}
	if c.Storage.CacheTTL < 0 {
		problems = append(problems, "storage.cache_ttl must not be negative")
	}
	if c.Upload.MaxBytes <= 0 {
		problems = append(problems, "upload.max_bytes must be positive")
	}
	if c.Auth.TokenTTL <= 0 {
		problems = append(problems, "auth.token_ttl must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not one of text, json", c.Log.Format))
	}
	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// RequireAdmin reports an error unless admin login is configured.
func (c Config) RequireAdmin() error {
	var missing []string
	if c.Auth.AdminEmail == "" {
		missing = append(missing, "BAKERY_AUTH_ADMIN_EMAIL")
	}
	if c.Auth.AdminPasswordHash == "" && c.Auth.AdminPassword == "" {
		missing = append(missing, "BAKERY_AUTH_ADMIN_PASSWORD_HASH")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: set %s (see `bakery hash-password`)", strings.Join(missing, " and "))
	}
	return nil
}

// Origins returns the allowed CORS origins.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.Server.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Addr returns the host:port the server listens on.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// EnsureJWTSecret fills cfg.Auth.JWTSecret, generating and persisting a
// random secret the first time none is configured.
func EnsureJWTSecret(cfg *Config, secrets SecretStore) (generated bool, err error) {
	if cfg.Auth.JWTSecret != "" {
		return false, nil
	}
	if v, err := secrets.Get(secretService, jwtSecretAccount); err == nil && v != "" {
		cfg.Auth.JWTSecret = v
		return false, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return false, fmt.Errorf("generating jwt secret: %w", err)
	}
	secret := hex.EncodeToString(buf)
	if err := secrets.Set(secretService, jwtSecretAccount, secret); err != nil {
		return false, fmt.Errorf("storing jwt secret: %w", err)
	}
	cfg.Auth.JWTSecret = secret
	return true, nil
}

func dataHome() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "bakery-data"
		}
	}
	return filepath.Join(dir, "bakery")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "bakery", "config.json")
}
