package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	NATSURL     string
	Bucket      string
	Timeout     time.Duration
	LogLevel    string
	LogFormat   string
	ShowVersion bool
	ShowHelp    bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	flag.StringVar(&cfg.NATSURL, "nats",
		getEnv("CHATSHOP_NATS_URL", "nats://localhost:4222"),
		"NATS server URL (env: CHATSHOP_NATS_URL)")

	flag.StringVar(&cfg.Bucket, "bucket",
		getEnv("CHATSHOP_SETTINGS_BUCKET", "chatshop_settings"),
		"JetStream KV bucket holding component settings (env: CHATSHOP_SETTINGS_BUCKET)")

	flag.DurationVar(&cfg.Timeout, "timeout",
		getEnvDuration("CHATSHOP_TIMEOUT", 10*time.Second),
		"Overall operation timeout (env: CHATSHOP_TIMEOUT)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("CHATSHOP_LOG_LEVEL", "warn"),
		"Log level: debug, info, warn, error (env: CHATSHOP_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("CHATSHOP_LOG_FORMAT", "text"),
		"Log format: json, text (env: CHATSHOP_LOG_FORMAT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")

	flag.Usage = printDetailedHelp
	flag.Parse()

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.Bucket == "" {
		return fmt.Errorf("bucket name cannot be empty")
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Component toggle administration

Inspects and edits the persisted enable/disable state of components in the
shared settings bucket. Changes take effect the next time the application
registers its components.

Usage: %s [options] <command>

Commands:
  list            List persisted component toggles
  enable <id>     Persist the toggle for <id> as enabled
  disable <id>    Persist the toggle for <id> as disabled

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # List component toggles on the default server
  %s list

  # Disable a component on a specific server
  %s --nats=nats://kv.internal:4222 disable analytics

Version: %s
Build: %s
`, os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
