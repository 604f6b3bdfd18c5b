package config

import (
	"fmt"
	"haters/crypto"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AllowedOrigins    []string
	PostgresURL       string
	JWTKey            string
	Port              string
	DecksDir          string
	Debug             bool
	HeartbeatInterval time.Duration
	TokenAge          time.Duration
	HashCost          crypto.HashCost
}

// Load reads the process environment, after merging an optional .env file
// found in the working directory. Variables already set win over the file.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from any lookup function shaped like os.LookupEnv.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Config{
		Port:              "5000",
		DecksDir:          "./defaultpacks",
		HeartbeatInterval: 30 * time.Second,
		TokenAge:          7 * 24 * time.Hour,
		HashCost:          crypto.DefaultHashCost,
	}

	origins, ok := lookup("ALLOWED_ORIGINS")
	if !ok {
		return Config{}, fmt.Errorf("missing ALLOWED_ORIGINS")
	}
	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	if cfg.PostgresURL, ok = lookup("POSTGRES_URL"); !ok {
		return Config{}, fmt.Errorf("missing POSTGRES_URL")
	}

	if cfg.JWTKey, ok = lookup("JWT_KEY"); !ok {
		return Config{}, fmt.Errorf("missing JWT_KEY")
	}

	if port, ok := lookup("PORT"); ok && port != "" {
		cfg.Port = port
	}

	if dir, ok := lookup("DECKS_DIR"); ok && dir != "" {
		cfg.DecksDir = dir
	}

	if debug, ok := lookup("DEBUG"); ok {
		parsed, err := strconv.ParseBool(debug)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DEBUG: %w", err)
		}
		cfg.Debug = parsed
	}

	if interval, ok := lookup("HEARTBEAT_INTERVAL"); ok {
		parsed, err := time.ParseDuration(interval)
		if err != nil || parsed <= 0 {
			return Config{}, fmt.Errorf("invalid HEARTBEAT_INTERVAL %q", interval)
		}
		cfg.HeartbeatInterval = parsed
	}

	if age, ok := lookup("TOKEN_AGE"); ok {
		parsed, err := time.ParseDuration(age)
		if err != nil || parsed <= 0 {
			return Config{}, fmt.Errorf("invalid TOKEN_AGE %q", age)
		}
		cfg.TokenAge = parsed
	}

	for _, knob := range []struct {
		key  string
		bits int
		set  func(uint64)
	}{
		{"ARGON2_ITERATIONS", 32, func(v uint64) { cfg.HashCost.Iterations = uint32(v) }},
		{"ARGON2_MEMORY_KIB", 32, func(v uint64) { cfg.HashCost.MemoryKiB = uint32(v) }},
		{"ARGON2_PARALLELISM", 8, func(v uint64) { cfg.HashCost.Parallelism = uint8(v) }},
	} {
		raw, ok := lookup(knob.key)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseUint(raw, 10, knob.bits)
		if err != nil || parsed == 0 {
			return Config{}, fmt.Errorf("invalid %s %q", knob.key, raw)
		}
		knob.set(parsed)
	}

	return cfg, nil
}
