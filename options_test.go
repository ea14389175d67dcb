package nexuschat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewOptionsDefaults(t *testing.T) {
	opts := NewOptions()
	assert.NotEmpty(t, opts.RelayURL)
	assert.Equal(t, ".nexuschat", opts.DataDir)
	assert.Empty(t, opts.DisplayName)
}

func TestLoadOptionsFromEnv(t *testing.T) {
	t.Setenv("NEXUSCHAT_DISPLAY_NAME", "Alice")
	t.Setenv("NEXUSCHAT_EMAIL", "alice@example.com")
	t.Setenv("NEXUSCHAT_RELAY_URL", "wss://relay.test/ws")
	t.Setenv("NEXUSCHAT_DATA_DIR", "/tmp/nexuschat-test")
	t.Setenv("NEXUSCHAT_LOG_LEVEL", "debug")

	opts := LoadOptionsFromEnv()
	assert.Equal(t, "Alice", opts.DisplayName)
	assert.Equal(t, "alice@example.com", opts.Email)
	assert.Equal(t, "wss://relay.test/ws", opts.RelayURL)
	assert.Equal(t, "/tmp/nexuschat-test", opts.DataDir)
	assert.Equal(t, "debug", opts.LogLevel)
}

func TestLoadOptionsFromEnvKeepsDefaults(t *testing.T) {
	t.Setenv("NEXUSCHAT_DISPLAY_NAME", "")
	t.Setenv("NEXUSCHAT_RELAY_URL", "")

	opts := LoadOptionsFromEnv()
	assert.Equal(t, NewOptions().RelayURL, opts.RelayURL)
	assert.Empty(t, opts.DisplayName)
}
