// Package config loads the governance settings: environment variables for
// deployment concerns, a YAML safety profile for policy.
package config

import "os"

// Config holds process-level configuration.
type Config struct {
	DataDir     string
	LogLevel    string
	ProfilePath string
	AuditDBPath string
	OTLPTarget  string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	dataDir := os.Getenv("WARDEN_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	profilePath := os.Getenv("WARDEN_PROFILE")
	if profilePath == "" {
		profilePath = "config/profile.yaml"
	}

	return &Config{
		DataDir:     dataDir,
		LogLevel:    logLevel,
		ProfilePath: profilePath,
		AuditDBPath: os.Getenv("WARDEN_AUDIT_DB"),
		OTLPTarget:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}
