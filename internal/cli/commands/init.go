package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/qcops/internal/cli/config"
	"github.com/leapstack-labs/qcops/internal/cli/output"
	"github.com/leapstack-labs/qcops/internal/synth"
)

// starterConfig mirrors config.Config with yaml tags in file order.
type starterConfig struct {
	Output   string `yaml:"output"`
	LogLevel string `yaml:"log_level"`
	Data     struct {
		Seed            uint64 `yaml:"seed"`
		ReferenceDate   string `yaml:"reference_date"`
		LineageGroups   int    `yaml:"lineage_groups"`
		Deviations      int    `yaml:"deviations"`
		RefreshInterval string `yaml:"refresh_interval"`
	} `yaml:"data"`
	UI struct {
		Port          int    `yaml:"port"`
		AutoOpen      bool   `yaml:"auto_open"`
		Watch         bool   `yaml:"watch"`
		SessionSecret string `yaml:"session_secret"`
	} `yaml:"ui"`
	Export struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
		S3     struct {
			Bucket    string `yaml:"bucket"`
			Region    string `yaml:"region"`
			Endpoint  string `yaml:"endpoint"`
			Prefix    string `yaml:"prefix"`
			PathStyle bool   `yaml:"path_style"`
		} `yaml:"s3"`
	} `yaml:"export"`
}

var starterComments = map[string]string{
	"output":    "Output format: auto|text|markdown|json|yaml",
	"log_level": "Log level: debug|info|warn|error",
	"data":      "Synthetic dataset. The same seed and reference date always produce the same data.",
	"ui":        "Dashboard server (qcops serve)",
	"export":    "Database export (qcops export). Values may reference ${ENV_VARS}.",
}

func defaultStarter() starterConfig {
	var s starterConfig
	s.Output = config.DefaultOutput
	s.LogLevel = config.DefaultLogLevel
	s.Data.Seed = synth.DefaultSeed
	s.Data.ReferenceDate = synth.DefaultReferenceDate.Format(time.DateOnly)
	s.Data.LineageGroups = synth.DefaultLineageGroups
	s.Data.Deviations = synth.DefaultDeviations
	s.Data.RefreshInterval = config.DefaultRefreshInterval.String()
	s.UI.Port = config.DefaultPort
	s.UI.AutoOpen = true
	s.UI.Watch = true
	s.UI.SessionSecret = "${QCOPS_SESSION_SECRET}"
	s.Export.Driver = config.DefaultExportDriver
	s.Export.DSN = config.DefaultExportDSN
	return s
}

// StarterConfig returns the commented qcops.yaml written by init.
func StarterConfig() ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(defaultStarter()); err != nil {
		return nil, err
	}
	// doc is a mapping of alternating key and value nodes.
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if c, ok := starterComments[key.Value]; ok {
			key.HeadComment = c
		}
	}

	var buf bytes.Buffer
	buf.WriteString("# qcops configuration\n\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a starter qcops.yaml",
		Long: `Write a commented qcops.yaml with the default settings for data
generation, the dashboard and exports.

The session secret is left as a ${QCOPS_SESSION_SECRET} reference so it
can be supplied from the environment.`,
		Example: `  # Initialize in current directory
  qcops init

  # Initialize in a new directory
  qcops init qc-demo

  # Force overwrite existing config
  qcops init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			// An existing, broken config must not block --force.
			mode := output.ModeAuto
			if cfg, err := getConfig(cmd); err == nil {
				mode = output.Mode(cfg.Output)
			}
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)
			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, config.ConfigFileNames[0])
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", configPath)
	}

	data, err := StarterConfig()
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	r.StatusLine(configPath, "success", "")
	r.Println("")
	r.Success("qcops configured!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  qcops summary    Network KPIs and release velocity")
	r.Println("  qcops serve      Open the dashboard")
	r.Println("  qcops shell      Query lots, lineage and CQAs interactively")

	return nil
}
