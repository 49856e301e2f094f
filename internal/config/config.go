/*
Package config handles loading and validating application configuration
from environment variables. All values have sensible defaults so the
daemon can start with zero environment setup during local development.
*/
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppConfig holds every configuration value the node agent needs. values
// are read once at startup and threaded through the app via dependency
// injection - no package-level config variable is ever read by a
// component directly, so every component's dependencies are visible in
// its constructor signature.
type AppConfig struct {
	// Port is the TCP port the HTTP request surface listens on.
	Port string

	// PanelURL is the control-plane base URL status notifications are
	// PUT to. empty disables panel notification entirely (logged once
	// at startup, not treated as an error - a node agent is still
	// useful standalone during local development).
	PanelURL string

	// DataDir is the root directory under which eggs/, configs/,
	// servers/, and logs/ are created. main.go creates all four at
	// startup.
	DataDir string

	// DockerImageOverrides maps a runtime family name (eg "MINECRAFT",
	// "JAVA17") to a canonical image reference, read from DOCKER_IMAGES_*
	// environment variables. eg DOCKER_IMAGES_JAVA17=eclipse-temurin:17-jre
	// populates DockerImageOverrides["JAVA17"].
	DockerImageOverrides map[string]string

	// LogFormat controls slog's output format: "text" for local
	// development, anything else (including "json") for production.
	LogFormat string

	// StatsHistoryDBPath is the SQLite file backing the stats/transition
	// history store.
	StatsHistoryDBPath string

	// LogRetentionDays is how long daily log files (and history rows)
	// are kept before the retention sweep deletes them.
	LogRetentionDays int
}

func (c *AppConfig) EggsDir() string    { return filepath.Join(c.DataDir, "eggs") }
func (c *AppConfig) ConfigsDir() string { return filepath.Join(c.DataDir, "configs") }
func (c *AppConfig) ServersDir() string { return filepath.Join(c.DataDir, "servers") }
func (c *AppConfig) LogsDir() string    { return filepath.Join(c.DataDir, "logs") }

// NewLogger constructs a *slog.Logger based on LogFormat. "text" produces
// human-readable output for local development; anything else produces
// structured JSON suitable for log shipping.
func (c *AppConfig) NewLogger() *slog.Logger {
	options := &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelDebug,
		ReplaceAttr: func(groups []string, attribute slog.Attr) slog.Attr {
			if attribute.Key == slog.SourceKey {
				source := attribute.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return attribute
		},
	}

	var handler slog.Handler
	if c.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, options)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, options)
	}
	return slog.New(handler)
}

// LoadAppConfig reads configuration from environment variables, falling
// back to local-development-friendly defaults for anything unset.
func LoadAppConfig() *AppConfig {
	retentionDays, err := strconv.Atoi(getEnv("LOG_RETENTION_DAYS", "30"))
	if err != nil || retentionDays <= 0 {
		retentionDays = 30
	}

	return &AppConfig{
		Port:                 getEnv("PORT", "8080"),
		PanelURL:             getEnv("PANEL_URL", ""),
		DataDir:              getEnv("DATA_DIR", "./data"),
		DockerImageOverrides: loadDockerImageOverrides(),
		LogFormat:            getEnv("LOG_FORMAT", "text"),
		StatsHistoryDBPath:   getEnv("STATS_HISTORY_DB_PATH", "./data/stats-history.db"),
		LogRetentionDays:     retentionDays,
	}
}

// loadDockerImageOverrides scans the process environment for DOCKER_IMAGES_*
// variables and strips the prefix to build the override map. using the
// environment directly (rather than enumerating expected families up
// front) means an operator can add an override for a brand new game
// family without a code change.
func loadDockerImageOverrides() map[string]string {
	const prefix = "DOCKER_IMAGES_"
	overrides := make(map[string]string)
	for _, entry := range os.Environ() {
		key, value, found := strings.Cut(entry, "=")
		if !found || !strings.HasPrefix(key, prefix) {
			continue
		}
		family := strings.TrimPrefix(key, prefix)
		if family != "" && value != "" {
			overrides[family] = value
		}
	}
	return overrides
}

// getEnv retrieves the value of an environment variable by key, falling
// back to the given default when unset or empty.
func getEnv(key, fallbackValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallbackValue
}
