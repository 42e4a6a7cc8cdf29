package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearBridgeEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BRIDGE_SERVER_HOST", "BRIDGE_SERVER_PORT", "BRIDGE_MATRIX_HOMESERVER_URL",
		"BRIDGE_MATRIX_SERVER_NAME", "BRIDGE_MYCELIUM_ENABLED", "BRIDGE_MYCELIUM_API_URL",
		"BRIDGE_FEDERATION_TIMEOUT", "BRIDGE_RATE_LIMIT_PER_SECOND", "BRIDGE_RATE_LIMIT_BURST",
		"BRIDGE_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearBridgeEnv(t)
	t.Setenv("BRIDGE_MYCELIUM_API_URL", "http://localhost:8989")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.ServerHost)
	assert.Equal(t, uint16(8081), cfg.ServerPort)
	assert.Equal(t, "http://localhost:8008", cfg.MatrixHomeserverURL)
	assert.True(t, cfg.MyceliumEnabled)
	assert.Equal(t, 30*time.Second, cfg.FederationTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestFromEnvOverrides(t *testing.T) {
	clearBridgeEnv(t)
	t.Setenv("BRIDGE_SERVER_PORT", "9000")
	t.Setenv("BRIDGE_MATRIX_HOMESERVER_URL", "https://matrix.example.com")
	t.Setenv("BRIDGE_MYCELIUM_ENABLED", "false")
	t.Setenv("BRIDGE_FEDERATION_TIMEOUT", "10")
	t.Setenv("BRIDGE_RATE_LIMIT_PER_SECOND", "5.5")
	t.Setenv("BRIDGE_RATE_LIMIT_BURST", "20")
	t.Setenv("BRIDGE_LOG_LEVEL", "debug")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, uint16(9000), cfg.ServerPort)
	assert.Equal(t, "https://matrix.example.com", cfg.MatrixHomeserverURL)
	assert.False(t, cfg.MyceliumEnabled)
	assert.Equal(t, 10*time.Second, cfg.FederationTimeout)
	assert.Equal(t, 5.5, cfg.RateLimitPerSecond)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestFromEnvRejectsEnabledMyceliumWithoutURL(t *testing.T) {
	clearBridgeEnv(t)
	t.Setenv("BRIDGE_MYCELIUM_ENABLED", "true")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BRIDGE_MYCELIUM_API_URL")
}

func TestFromEnvAllowsDisabledMyceliumWithoutURL(t *testing.T) {
	clearBridgeEnv(t)
	t.Setenv("BRIDGE_MYCELIUM_ENABLED", "false")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.MyceliumEnabled)
	assert.Empty(t, cfg.MyceliumAPIURL)
}

func TestFromEnvRejectsInvalidPort(t *testing.T) {
	clearBridgeEnv(t)
	t.Setenv("BRIDGE_SERVER_PORT", "not-a-port")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BRIDGE_SERVER_PORT")
}

func TestValidateRejectsEmptyHomeserverURL(t *testing.T) {
	cfg := Config{MatrixHomeserverURL: "", ServerPort: 8081}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MATRIX_HOMESERVER_URL")
}

func TestValidateRejectsZeroPort(t *testing.T) {
	cfg := Config{MatrixHomeserverURL: "http://localhost:8008", ServerPort: 0}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERVER_PORT")
}
