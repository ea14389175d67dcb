package nexuschat

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/nexuschat/transport"
)

// Options configures a Session.
type Options struct {
	// DisplayName is the human-readable name; the stable identity id is
	// derived from it once at registration.
	DisplayName string
	// Email and AvatarRef travel with the identity on presence events.
	Email     string
	AvatarRef string

	// RelayURL is the websocket relay endpoint. Ignored when Bus is set.
	RelayURL string
	// Bus overrides the transport, typically with a MemoryBus for tests
	// and local demos.
	Bus transport.Bus

	// DataDir holds the message and group snapshots.
	DataDir string
	// LogLevel is a logrus level name; empty leaves the global level alone.
	LogLevel string
}

// NewOptions returns Options with usable defaults.
func NewOptions() *Options {
	return &Options{
		RelayURL: "wss://relay.nexuschat.example/ws",
		DataDir:  ".nexuschat",
	}
}

// LoadOptionsFromEnv builds Options from the environment, reading a .env
// file first when one exists. Recognized variables: NEXUSCHAT_DISPLAY_NAME,
// NEXUSCHAT_EMAIL, NEXUSCHAT_AVATAR_REF, NEXUSCHAT_RELAY_URL,
// NEXUSCHAT_DATA_DIR, NEXUSCHAT_LOG_LEVEL.
func LoadOptionsFromEnv() *Options {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithFields(logrus.Fields{
			"function": "LoadOptionsFromEnv",
			"error":    err,
		}).Warn("Could not read .env file")
	}

	opts := NewOptions()
	if v := os.Getenv("NEXUSCHAT_DISPLAY_NAME"); v != "" {
		opts.DisplayName = v
	}
	if v := os.Getenv("NEXUSCHAT_EMAIL"); v != "" {
		opts.Email = v
	}
	if v := os.Getenv("NEXUSCHAT_AVATAR_REF"); v != "" {
		opts.AvatarRef = v
	}
	if v := os.Getenv("NEXUSCHAT_RELAY_URL"); v != "" {
		opts.RelayURL = v
	}
	if v := os.Getenv("NEXUSCHAT_DATA_DIR"); v != "" {
		opts.DataDir = v
	}
	if v := os.Getenv("NEXUSCHAT_LOG_LEVEL"); v != "" {
		opts.LogLevel = v
	}
	return opts
}

// applyLogLevel sets the global logrus level when one was configured.
func (o *Options) applyLogLevel() {
	if o.LogLevel == "" {
		return
	}
	level, err := logrus.ParseLevel(o.LogLevel)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "applyLogLevel",
			"level":    o.LogLevel,
		}).Warn("Unknown log level, keeping current")
		return
	}
	logrus.SetLevel(level)
}
