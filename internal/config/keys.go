package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key string
	typ keyType
	env string
	// aliases are older variable names still honoured after env.
	aliases []string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "BAKERY_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "BAKERY_SERVER_PORT", aliases: []string{"PORT"},
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.allowed_origins", typ: kString, env: "BAKERY_SERVER_ALLOWED_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.AllowedOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AllowedOrigins },
	},
	{
		key: "server.static_dir", typ: kString, env: "BAKERY_SERVER_STATIC_DIR",
		apply:   func(cfg *Config, v any) { cfg.Server.StaticDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.StaticDir },
	},
	{
		key: "storage.backend", typ: kString, env: "BAKERY_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "BAKERY_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.seed_dir", typ: kString, env: "BAKERY_STORAGE_SEED_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.SeedDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.SeedDir },
	},
	{
		key: "storage.cache_ttl", typ: kDuration, env: "BAKERY_STORAGE_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Storage.CacheTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Storage.CacheTTL },
	},
	{
		key: "upload.dir", typ: kString, env: "BAKERY_UPLOAD_DIR",
		apply:   func(cfg *Config, v any) { cfg.Upload.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Upload.Dir },
	},
	{
		key: "upload.max_bytes", typ: kInt, env: "BAKERY_UPLOAD_MAX_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Upload.MaxBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Upload.MaxBytes },
	},
	{
		key: "auth.admin_email", typ: kString, env: "BAKERY_AUTH_ADMIN_EMAIL", aliases: []string{"ADMIN_EMAIL"},
		apply:   func(cfg *Config, v any) { cfg.Auth.AdminEmail = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.AdminEmail },
	},
	{
		key: "auth.admin_password_hash", typ: kString, env: "BAKERY_AUTH_ADMIN_PASSWORD_HASH",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.AdminPasswordHash = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.AdminPasswordHash },
	},
	{
		key: "auth.admin_password", typ: kString, env: "BAKERY_AUTH_ADMIN_PASSWORD", aliases: []string{"ADMIN_PASSWORD"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.AdminPassword = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.AdminPassword },
	},
	{
		key: "auth.jwt_secret", typ: kString, env: "BAKERY_AUTH_JWT_SECRET", aliases: []string{"JWT_SECRET"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.JWTSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.JWTSecret },
	},
	{
		key: "auth.token_ttl", typ: kDuration, env: "BAKERY_AUTH_TOKEN_TTL",
		apply:   func(cfg *Config, v any) { cfg.Auth.TokenTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Auth.TokenTTL },
	},
	{
		key: "order.whatsapp_number", typ: kString, env: "BAKERY_ORDER_WHATSAPP_NUMBER",
		apply:   func(cfg *Config, v any) { cfg.Order.WhatsAppNumber = v.(string) },
		extract: func(cfg Config) any { return cfg.Order.WhatsAppNumber },
	},
	{
		key: "log.level", typ: kString, env: "BAKERY_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "BAKERY_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					return fmt.Errorf("reading %s: %w", s.key, err)
				}
				s.apply(cfg, d)
			}
		}
	}
	return nil
}

func lookupEnv(s keySpec) (string, string) {
	for _, name := range append([]string{s.env}, s.aliases...) {
		if name == "" {
			continue
		}
		if v := os.Getenv(name); v != "" {
			return name, v
		}
	}
	return "", ""
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name, raw := lookupEnv(s)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		}
	}
}
