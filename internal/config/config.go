package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the navigation tally daemon.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// HTTP surface
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool
	APIToken         string

	// Tab matching and engine behavior
	TabURLFilter     string
	ProbeDebounceMS  int
	EvalTimeoutMS    int
	ResyncIntervalMS int

	// Persistence
	AllowlistPath string

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		BindAddr:         getEnvOrDefault("NAVTALLY_BIND_ADDR", "127.0.0.1:8199"),
		PortCandidates:   splitList(getEnvOrDefault("NAVTALLY_PORT_CANDIDATES", "127.0.0.1:8299,127.0.0.1:8399")),
		PortAutoFallback: getEnvBoolOrDefault("NAVTALLY_PORT_AUTO_FALLBACK", true),
		APIToken:         os.Getenv("NAVTALLY_API_TOKEN"),
		TabURLFilter:     getEnvOrDefault("NAVTALLY_TAB_URL_FILTER", ""),
		ProbeDebounceMS:  getEnvIntOrDefault("NAVTALLY_PROBE_DEBOUNCE_MS", 400),
		EvalTimeoutMS:    getEnvIntOrDefault("NAVTALLY_EVAL_TIMEOUT_MS", 5000),
		ResyncIntervalMS: getEnvIntOrDefault("NAVTALLY_RESYNC_INTERVAL_MS", 2000),
		AllowlistPath:    getEnvOrDefault("NAVTALLY_ALLOWLIST_PATH", "data/allowlist.json"),
		LogLevel:         strings.ToLower(getEnvOrDefault("NAVTALLY_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("NAVTALLY_LOG_FILE", "logs/navtally.log"),
	}

	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	if cfg.ResyncIntervalMS < 500 {
		cfg.ResyncIntervalMS = 500
	}
	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint used by the chromedp remote allocator.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func (c *Config) ProbeDebounce() time.Duration {
	return time.Duration(c.ProbeDebounceMS) * time.Millisecond
}

func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

func (c *Config) ResyncInterval() time.Duration {
	return time.Duration(c.ResyncIntervalMS) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
