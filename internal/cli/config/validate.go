package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/leapstack-labs/qcops/internal/cli/output"
)

// ExportDrivers are the accepted export.driver values.
var ExportDrivers = []string{"sqlite", "duckdb", "postgres"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := output.ParseMode(c.Output); err != nil {
		return fmt.Errorf("invalid output: %w", err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log_level %q (want debug|info|warn|error)", c.LogLevel)
	}
	if err := c.Data.SynthOptions().Validate(); err != nil {
		return fmt.Errorf("invalid data section: %w", err)
	}
	if c.Data.RefreshInterval < 0 {
		return fmt.Errorf("data.refresh_interval must not be negative")
	}
	if c.UI.Port < 0 || c.UI.Port > 65535 {
		return fmt.Errorf("ui.port %d out of range", c.UI.Port)
	}
	if c.Export.Driver != "" && !slices.Contains(ExportDrivers, strings.ToLower(c.Export.Driver)) {
		return fmt.Errorf("unknown export driver %q (want %s)", c.Export.Driver, strings.Join(ExportDrivers, "|"))
	}
	return nil
}
