package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/qcops/internal/cli/config"
	"github.com/leapstack-labs/qcops/internal/synth"
)

func TestNewInitCommand(t *testing.T) {
	tests := []struct {
		name     string
		setupDir func(t *testing.T, dir string) // setup before running
		args     []string
		wantErr  string
		wantFile string
	}{
		{
			name:     "init empty directory",
			wantFile: "qcops.yaml",
		},
		{
			name:     "init into a new subdirectory",
			args:     []string{"demo/nested"},
			wantFile: "demo/nested/qcops.yaml",
		},
		{
			name: "init existing config without force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "qcops.yaml"), []byte("existing"), 0o600)
			},
			wantErr: "already exists. Use --force to overwrite",
		},
		{
			name: "init broken config with force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "qcops.yaml"), []byte("output: [\n"), 0o600)
			},
			args:     []string{"--force"},
			wantFile: "qcops.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			t.Chdir(tmpDir)
			config.ResetConfig()
			t.Cleanup(config.ResetConfig)

			if tt.setupDir != nil {
				tt.setupDir(t, tmpDir)
			}

			cmd := NewInitCommand()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			content, err := os.ReadFile(filepath.Join(tmpDir, tt.wantFile))
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(string(content), "# qcops configuration\n"))
			assert.Contains(t, buf.String(), "qcops configured!")
		})
	}
}

func TestStarterConfig(t *testing.T) {
	data, err := StarterConfig()
	require.NoError(t, err)
	body := string(data)

	for _, want := range []string{
		"# Output format: auto|text|markdown|json|yaml\noutput: auto",
		"# Synthetic dataset.",
		"  seed: 42",
		"2023-10-27",
		"session_secret: ${QCOPS_SESSION_SECRET}",
		"  driver: sqlite",
		"  s3:\n    bucket: \"\"",
	} {
		assert.Contains(t, body, want)
	}
}

func TestStarterConfigLoadsAsDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)
	t.Setenv("QCOPS_SESSION_SECRET", "from-env")

	data, err := StarterConfig()
	require.NoError(t, err)
	path := filepath.Join(dir, "qcops.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := config.LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, config.DefaultOutput, cfg.Output)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, synth.DefaultOptions(), cfg.Data.SynthOptions())
	assert.Equal(t, config.DefaultRefreshInterval, cfg.Data.RefreshInterval)
	assert.Equal(t, config.DefaultPort, cfg.UI.Port)
	assert.True(t, cfg.UI.AutoOpen)
	assert.Equal(t, "from-env", cfg.UI.SessionSecret)
	assert.Equal(t, config.DefaultExportDriver, cfg.Export.Driver)
	assert.False(t, cfg.Export.S3.Enabled())
}

func TestInitCommandMetadata(t *testing.T) {
	cmd := NewInitCommand()

	assert.Equal(t, "init [directory]", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotNil(t, cmd.Flags().Lookup("force"), "--force flag should exist")
}
