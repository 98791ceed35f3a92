// Package main provides tests for the qcops CLI.
package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/leapstack-labs/qcops/internal/cli"
	"github.com/leapstack-labs/qcops/internal/cli/commands"
	"github.com/leapstack-labs/qcops/internal/cli/config"
	"github.com/leapstack-labs/qcops/internal/dataset/datasettest"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(commands.WithSnapshot(context.Background(), datasettest.Small(t)))
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	output, err := execute(t, "version")
	if err != nil {
		t.Errorf("version command error = %v", err)
	}
	if !strings.Contains(output, "qcops") {
		t.Errorf("version output should contain 'qcops', got: %s", output)
	}
}

func TestHelpCommand(t *testing.T) {
	output, err := execute(t, "--help")
	if err != nil {
		t.Errorf("help command error = %v", err)
	}

	expectedCommands := []string{"lineage", "cqa", "lots", "partners", "deviations", "report", "serve", "export", "shell"}
	for _, expected := range expectedCommands {
		if !strings.Contains(output, expected) {
			t.Errorf("help output should contain '%s', got: %s", expected, output)
		}
	}
}

func TestLineageCommand(t *testing.T) {
	output, err := execute(t, "lineage", "DM1-DP-400")
	if err != nil {
		t.Errorf("lineage command error = %v", err)
	}
	if !strings.Contains(output, "DM1-DS-300") {
		t.Errorf("lineage output should contain the drug substance, got: %s", output)
	}
}

func TestLotsCommandJSON(t *testing.T) {
	output, err := execute(t, "lots", "--output", "json", "--stage", "dp")
	if err != nil {
		t.Errorf("lots --output json command error = %v", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(output), "[") {
		t.Errorf("lots json output should be an array, got: %s", output)
	}
}

func TestCompletionCommand(t *testing.T) {
	shells := []string{"bash", "zsh", "fish", "powershell"}

	for _, shell := range shells {
		t.Run(shell, func(t *testing.T) {
			if _, err := execute(t, "completion", shell); err != nil {
				t.Errorf("completion %s command error = %v", shell, err)
			}
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, err := execute(t, "unknown-command"); err == nil {
		t.Error("unknown command should return an error")
	}
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
