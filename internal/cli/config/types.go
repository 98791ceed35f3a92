// Package config provides configuration management for the qcops CLI.
//
// Values are layered with koanf: built-in defaults, then a qcops.yaml file,
// then QCOPS_* environment variables, then explicitly set command-line
// flags.
package config

import (
	"time"

	"github.com/leapstack-labs/qcops/internal/synth"
)

// Config holds all CLI configuration options.
type Config struct {
	Verbose  bool         `koanf:"verbose"`
	Output   string       `koanf:"output"`
	LogLevel string       `koanf:"log_level"`
	Data     DataConfig   `koanf:"data"`
	UI       UIConfig     `koanf:"ui"`
	Export   ExportConfig `koanf:"export"`

	// ConfigFile is the file the values were read from, if any.
	ConfigFile string `koanf:"-"`
}

// DataConfig controls dataset generation.
type DataConfig struct {
	Seed            uint64        `koanf:"seed"`
	ReferenceDate   time.Time     `koanf:"reference_date"`
	LineageGroups   int           `koanf:"lineage_groups"`
	Deviations      int           `koanf:"deviations"`
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// SynthOptions converts the data section into generator options.
func (d DataConfig) SynthOptions() synth.Options {
	return synth.Options{
		Seed:          d.Seed,
		ReferenceDate: d.ReferenceDate,
		LineageGroups: d.LineageGroups,
		Deviations:    d.Deviations,
	}
}

// UIConfig holds configuration for the dashboard server.
type UIConfig struct {
	Port          int    `koanf:"port"`
	AutoOpen      bool   `koanf:"auto_open"`
	Watch         bool   `koanf:"watch"`
	SessionSecret string `koanf:"session_secret"`
}

// ExportConfig selects the export sink.
type ExportConfig struct {
	Driver string   `koanf:"driver"`
	DSN    string   `koanf:"dsn"`
	S3     S3Config `koanf:"s3"`
}

// S3Config is the optional upload target for file-based exports.
type S3Config struct {
	Bucket    string `koanf:"bucket"`
	Region    string `koanf:"region"`
	Endpoint  string `koanf:"endpoint"`
	Prefix    string `koanf:"prefix"`
	PathStyle bool   `koanf:"path_style"`
}

// Enabled reports whether an upload target is configured.
func (s S3Config) Enabled() bool { return s.Bucket != "" }

// Default configuration values.
const (
	DefaultOutput          = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultLogLevel        = "warn"
	DefaultPort            = 8765
	DefaultRefreshInterval = time.Hour
	DefaultExportDriver    = "sqlite"
	DefaultExportDSN       = "qcops.db"
	DefaultSessionSecret   = "qcops-dev-secret-change-in-production" //nolint:gosec // development default
)

// ConfigFileNames are searched, in order, in each candidate directory.
var ConfigFileNames = []string{"qcops.yaml", "qcops.yml"}
