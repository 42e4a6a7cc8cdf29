// Package config loads the bridge's process configuration from
// environment variables, following the BRIDGE_-prefixed convention of
// the original implementation this bridge was distilled from.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Config is the bridge's full runtime configuration.
type Config struct {
	ServerHost string
	ServerPort uint16

	MatrixHomeserverURL string
	MatrixServerName    string

	MyceliumEnabled bool
	MyceliumAPIURL  string

	FederationTimeout time.Duration

	RateLimitPerSecond float64
	RateLimitBurst     int

	LogLevel string
}

// Default values mirror original_source/backend/shared/src/config.rs's
// BridgeConfig::default(), except mycelium_api_url, which has no safe
// default here: an overlay pointed at the wrong place fails every
// submission loudly (falls back to Matrix), but silently defaulting it
// to localhost would make a misconfigured deployment look healthy.
const (
	defaultServerHost        = "0.0.0.0"
	defaultServerPort        = 8081
	defaultMatrixHomeserver  = "http://localhost:8008"
	defaultFederationTimeout = 30 * time.Second
	defaultRateLimitPerSec   = 2.0
	defaultRateLimitBurst    = 5
	defaultLogLevel          = "info"
)

// FromEnv loads configuration from the process environment, applying
// defaults for anything unset, then validates it.
func FromEnv() (Config, error) {
	cfg := Config{
		ServerHost:           getEnv("BRIDGE_SERVER_HOST", defaultServerHost),
		MatrixHomeserverURL:  getEnv("BRIDGE_MATRIX_HOMESERVER_URL", defaultMatrixHomeserver),
		MatrixServerName:     getEnv("BRIDGE_MATRIX_SERVER_NAME", ""),
		MyceliumAPIURL:       getEnv("BRIDGE_MYCELIUM_API_URL", ""),
		LogLevel:             getEnv("BRIDGE_LOG_LEVEL", defaultLogLevel),
		MyceliumEnabled:      true,
		ServerPort:           defaultServerPort,
		FederationTimeout:    defaultFederationTimeout,
		RateLimitPerSecond:   defaultRateLimitPerSec,
		RateLimitBurst:       defaultRateLimitBurst,
	}

	var err error
	if cfg.ServerPort, err = getEnvUint16("BRIDGE_SERVER_PORT", defaultServerPort); err != nil {
		return Config{}, err
	}
	if cfg.MyceliumEnabled, err = getEnvBool("BRIDGE_MYCELIUM_ENABLED", true); err != nil {
		return Config{}, err
	}
	if cfg.FederationTimeout, err = getEnvSeconds("BRIDGE_FEDERATION_TIMEOUT", defaultFederationTimeout); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitPerSecond, err = getEnvFloat("BRIDGE_RATE_LIMIT_PER_SECOND", defaultRateLimitPerSec); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitBurst, err = getEnvInt("BRIDGE_RATE_LIMIT_BURST", defaultRateLimitBurst); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants FromEnv cannot enforce via defaults alone:
// an enabled overlay needs somewhere to submit to.
func (c Config) Validate() error {
	if c.MatrixHomeserverURL == "" {
		return errors.New("config: BRIDGE_MATRIX_HOMESERVER_URL must not be empty")
	}
	if c.MyceliumEnabled && c.MyceliumAPIURL == "" {
		return errors.New("config: BRIDGE_MYCELIUM_API_URL is required when BRIDGE_MYCELIUM_ENABLED is true")
	}
	if c.ServerPort == 0 {
		return errors.New("config: BRIDGE_SERVER_PORT must not be 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Wrapf(err, "config: invalid boolean for %s", key)
	}
	return b, nil
}

func getEnvInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "config: invalid integer for %s", key)
	}
	return n, nil
}

func getEnvUint16(key string, fallback uint16) (uint16, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return 0, errors.Wrapf(err, "config: invalid port for %s", key)
	}
	return uint16(n), nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "config: invalid number for %s", key)
	}
	return f, nil
}

func getEnvSeconds(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "config: invalid seconds value for %s", key)
	}
	return time.Duration(secs) * time.Second, nil
}
