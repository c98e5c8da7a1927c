package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// KeyInfo is one row of `bakery config show`.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	// EnvSet reports that EnvVar (or one of its aliases) is set, so a value
	// written with SetKey will be shadowed.
	EnvSet bool
}

func lookupKey(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func (s keySpec) envSet() bool {
	for _, name := range append([]string{s.env}, s.aliases...) {
		if _, ok := os.LookupEnv(name); ok {
			return true
		}
	}
	return false
}

// ShowAll lists the settable keys with their effective values.
func ShowAll(cfg Config) []KeyInfo {
	result := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprint(s.extract(cfg)),
			EnvSet: s.envSet(),
		})
	}
	return result
}

// SetKey persists value for key in the user config file.
func SetKey(key, value string) error {
	return setKey(newFileBackend(configFilePath()), key, value)
}

func setKey(b ConfigBackend, key, value string) error {
	s, ok := lookupKey(key)
	if !ok {
		return fmt.Errorf("unknown config key %q (valid keys: %v)", key, ValidKeys())
	}
	if s.secret {
		return fmt.Errorf("%s is a secret; set %s instead", key, s.env)
	}

	if s.typ == kInt {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s expects an integer, got %q", key, value)
		}
		return b.SetInt(key, n)
	}
	if s.typ == kDuration {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s expects a duration such as 30s or 24h, got %q", key, value)
		}
	}
	return b.SetString(key, value)
}

// ValidKeys returns the keys accepted by SetKey.
func ValidKeys() []string {
	var keys []string
	for _, info := range ShowAll(Config{}) {
		keys = append(keys, info.Key)
	}
	return keys
}
