package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/qcops/internal/cli/commands"
	"github.com/leapstack-labs/qcops/internal/cli/config"
	"github.com/leapstack-labs/qcops/internal/cli/output"
	"github.com/leapstack-labs/qcops/internal/cli/testutil"
	"github.com/leapstack-labs/qcops/internal/dataset/datasettest"
	"github.com/leapstack-labs/qcops/internal/export"
	"github.com/leapstack-labs/qcops/pkg/core"
)

// run executes the root command against the small fixture snapshot in an
// isolated directory.
func run(t *testing.T, args ...string) (testutil.Result, error) {
	t.Helper()
	testutil.IsolateConfig(t)
	ctx := commands.WithSnapshot(context.Background(), datasettest.Small(t))
	return testutil.Execute(ctx, NewRootCmd(), args...)
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), s)
	return v
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()
	want := []string{
		"browse", "completion", "cqa", "deviations", "export", "init", "lineage",
		"lots", "partner", "partners", "report", "serve", "shell", "summary", "version",
	}
	var got []string
	for _, c := range root.Commands() {
		got = append(got, c.Name())
	}
	assert.ElementsMatch(t, want, got)

	for _, flag := range []string{"config", "verbose", "output", "log-level", "seed", "reference-date", "lineage-groups", "deviation-count"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestRun_MarkdownOutput(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		want       []string
		wantStderr []string
		notWant    []string
	}{
		{
			name: "lineage of a drug product",
			args: []string{"lineage", "DM1-DP-400"},
			want: []string{"# Lineage for DM1-DP-400", "| DM1-Antibody-100 |", "| DM1-Oligo-200 |", "| DM1-DS-300 |", "| DM1-DP-400 |"},
		},
		{
			name:       "lineage with cascade",
			args:       []string{"lineage", "DM1-DP-400", "--cqa"},
			want:       []string{"## CQA cascade", "Trending Low", "| Aggregate Content (%) |"},
			wantStderr: []string{"Purity by RP-HPLC (%): Trending Low"},
		},
		{
			name:    "lineage of an intermediate, downstream only",
			args:    []string{"lineage", "DM1-Oligo-200", "--upstream=false"},
			want:    []string{"## Used in (2)", "| DM1-DS-300 |", "| DM1-DP-400 |"},
			notWant: []string{"Made from"},
		},
		{
			name: "lineage of a raw material",
			args: []string{"lineage", "DMD-Antibody-102"},
			want: []string{"## Made from (0)", "none", "## Used in (2)"},
		},
		{
			name: "cqa for an explicit pair",
			args: []string{"cqa", "DM1-DS-300", "DM1-DP-400"},
			want: []string{"# CQA cascade: DM1-DS-300 → DM1-DP-400", "| 98.00 |", "| 97.00 |"},
		},
		{
			name: "cqa without results",
			args: []string{"cqa", "DM1-DP-401"},
			want: []string{"Not Applicable", "✓ All attributes in trend"},
		},
		{
			name: "lots filtered",
			args: []string{"lots", "--partner", "VialFill Services", "--open"},
			want: []string{"| DM1-DP-401 |", "| DM1-DP-499 |", "2 lots"},
			notWant: []string{"DM1-DP-400", "DMD-DP-402"},
		},
		{
			name: "lots without matches",
			args: []string{"lots", "--product", "fshd"},
			want: []string{"No lots match the filter."},
		},
		{
			name: "partner matrix",
			args: []string{"partners"},
			want: []string{"# Partner performance", "| Pharma-Mfg | CMO | Boston", "| VialFill Services |"},
		},
		{
			name: "partner deep dive",
			args: []string{"partner", "Pharma-Mfg"},
			want: []string{
				"# Pharma-Mfg",
				"- **Lots:** 6",
				"- **OOS rate:** 100.0%",
				"- **Purity Cpk:** N/A (Insufficient data)",
				"Not run: 1 lots with purity and impurity results, 6 needed.",
				"| DEV-1 |",
			},
		},
		{
			name: "deviation tracker",
			args: []string{"deviations"},
			want: []string{
				"## New Event (0)",
				"## Investigation (1)",
				"## CAPA Plan (1)",
				"## Closed (1)",
				"| Reagent Issue | 1 | 100.0% |",
				"1 closed, mean 20.0 days, 1 within the 30 day target.",
			},
		},
		{
			name:    "deviation tracker filtered by type",
			args:    []string{"deviations", "--type", "OOT"},
			want:    []string{"## CAPA Plan (1)", "No OOS events."},
			notWant: []string{"DEV-1"},
		},
		{
			name: "summary",
			args: []string{"summary"},
			want: []string{"- **Total lots:** 13", "- **Released:** 3", "- **Open CAPAs:** 1", "w/c 2023-10-09", "test-snapshot"},
		},
		{
			name: "markdown report",
			args: []string{"report", "--product", "dmd"},
			want: []string{"Regulatory Data Summary: DMD", "DMD-DP-402", "DEV-3"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := run(t, tt.args...)
			require.NoError(t, err, res.Stderr)
			testutil.AssertNoANSI(t, res.Stdout)
			testutil.AssertValidMarkdown(t, res.Stdout)
			for _, w := range tt.want {
				assert.Contains(t, res.Stdout, w)
			}
			for _, w := range tt.wantStderr {
				assert.Contains(t, res.Stderr, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, res.Stdout, w)
			}
		})
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		is      error
		wantErr string
	}{
		{"incomplete lineage", []string{"lineage", "DM1-DP-499"}, core.ErrLineageIncomplete, "DM1-DP-499"},
		{"unknown lot", []string{"lineage", "NOPE-1"}, nil, "lot not found: NOPE-1"},
		{"cqa with unknown lot", []string{"cqa", "NOPE-1", "DM1-DP-400"}, core.ErrMissingAttribute, "NOPE-1"},
		{"cqa of a single unknown lot", []string{"cqa", "NOPE-1"}, core.ErrMissingAttribute, "NOPE-1"},
		{"cqa needs a drug product", []string{"cqa", "DM1-DS-300"}, nil, "is a Drug Substance lot"},
		{"cqa on an orphan", []string{"cqa", "DM1-DP-499"}, core.ErrLineageIncomplete, ""},
		{"drift fails on request", []string{"cqa", "DM1-DP-400", "--fail-on-drift"}, nil, "1 attribute(s) drifting"},
		{"bad lot status", []string{"lots", "--status", "Done"}, nil, "unknown lot status"},
		{"bad stage", []string{"lots", "--stage", "fill"}, nil, "unknown stage"},
		{"unknown partner", []string{"partner", "Acme"}, nil, `unknown partner "Acme"`},
		{"bad deviation type", []string{"deviations", "--type", "Major"}, nil, "unknown deviation type"},
		{"bad report date", []string{"report", "--from", "01/09/2023"}, nil, "invalid --from date"},
		{"reversed report range", []string{"report", "--from", "2023-10-01", "--to", "2023-09-01"}, nil, ""},
		{"bad report format", []string{"report", "--format", "pdf"}, nil, "unknown format"},
		{"bad output mode", []string{"lots", "-o", "xml"}, nil, "invalid output"},
		{"negative weeks", []string{"summary", "--weeks", "-1"}, nil, "must not be negative"},
		{"bad export driver", []string{"export", "--driver", "mysql"}, nil, "unknown export driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestRun_JSON(t *testing.T) {
	t.Run("lots", func(t *testing.T) {
		res, err := run(t, "lots", "--product", "dm1", "--stage", "dp", "-o", "json")
		require.NoError(t, err)
		lots := decode[[]core.Lot](t, res.Stdout)
		var ids []string
		for _, l := range lots {
			ids = append(ids, l.ID)
		}
		assert.Equal(t, []string{"DM1-DP-400", "DM1-DP-401", "DM1-DP-499"}, ids)
	})

	t.Run("empty lots are an array", func(t *testing.T) {
		res, err := run(t, "lots", "--product", "fshd", "-o", "json")
		require.NoError(t, err)
		assert.JSONEq(t, "[]", res.Stdout)
	})

	t.Run("lineage chain", func(t *testing.T) {
		res, err := run(t, "lineage", "DM1-DP-400", "-o", "json")
		require.NoError(t, err)
		got := decode[commands.LineageOutput](t, res.Stdout)
		require.NotNil(t, got.Chain)
		want := []string{"DM1-Antibody-100", "DM1-Oligo-200", "DM1-DS-300", "DM1-DP-400"}
		var ids []string
		for _, l := range got.Chain.Lots() {
			ids = append(ids, l.ID)
		}
		if diff := cmp.Diff(want, ids); diff != "" {
			t.Errorf("chain mismatch (-want +got):\n%s", diff)
		}
		assert.Empty(t, got.Upstream)
	})

	t.Run("cqa", func(t *testing.T) {
		res, err := run(t, "cqa", "DM1-DP-400", "-o", "json")
		require.NoError(t, err)
		got := decode[commands.CQAOutput](t, res.Stdout)
		assert.Equal(t, "DM1-DS-300", got.DrugSubstance)
		assert.Equal(t, 1, got.Flagged)
		require.Len(t, got.Rows, 3)
		assert.Equal(t, "Trending Low", string(got.Rows[0].Trend))
	})

	t.Run("summary", func(t *testing.T) {
		res, err := run(t, "summary", "--weeks", "0", "-o", "json")
		require.NoError(t, err)
		got := decode[commands.SummaryOutput](t, res.Stdout)
		assert.Equal(t, "test-snapshot", got.Snapshot.ID)
		assert.Equal(t, 13, got.KPIs.TotalLots)
		assert.Len(t, got.Velocity.Weeks, 3)
	})

	t.Run("partners", func(t *testing.T) {
		res, err := run(t, "partners", "-o", "json")
		require.NoError(t, err)
		got := decode[[]map[string]any](t, res.Stdout)
		assert.Len(t, got, 5)
	})
}

func TestRun_YAML(t *testing.T) {
	res, err := run(t, "deviations", "--product", "DMD (AOC-1020)", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "board:")
	assert.Contains(t, res.Stdout, "id: DEV-3")
	assert.NotContains(t, res.Stdout, "DEV-1")
}

func TestRun_ReportToFile(t *testing.T) {
	testutil.IsolateConfig(t)
	dir := t.TempDir()
	ctx := commands.WithSnapshot(context.Background(), datasettest.Small(t))

	res, err := testutil.Execute(ctx, NewRootCmd(), "report", "--format", "html", "--out", dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "regulatory-DM1-2023-09-27_2023-09-27.html")
	assert.Contains(t, res.Stdout, path)
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "<!doctype html>")
	assert.Contains(t, string(body), "DM1-DP-400")
}

func TestRun_ExportSQLite(t *testing.T) {
	testutil.IsolateConfig(t)
	path := filepath.Join(t.TempDir(), "qc.db")
	ctx := commands.WithSnapshot(context.Background(), datasettest.Small(t))

	res, err := testutil.Execute(ctx, NewRootCmd(), "export", "--dsn", path, "-o", "json")
	require.NoError(t, err, res.Stderr)

	got := decode[export.Result](t, res.Stdout)
	assert.Equal(t, "sqlite", got.Driver)
	assert.Equal(t, "test-snapshot", got.SnapshotID)
	assert.Equal(t, 13, got.Lots)
	assert.Equal(t, 3, got.Deviations)
	assert.Equal(t, path, got.Path)
	assert.Empty(t, got.Location)
	assert.FileExists(t, path)
}

func TestConfigPrecedenceThroughRoot(t *testing.T) {
	dir := testutil.IsolateConfig(t)
	path := testutil.WriteConfig(t, dir, "output: yaml\nlog_level: info\n")
	ctx := commands.WithSnapshot(context.Background(), datasettest.Small(t))

	res, err := testutil.Execute(ctx, NewRootCmd(), "summary")
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "kpis:", "file sets yaml output")

	t.Setenv("QCOPS_OUTPUT", "json")
	res, err = testutil.Execute(ctx, NewRootCmd(), "summary")
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, `"kpis"`, "env overrides file")

	res, err = testutil.Execute(ctx, NewRootCmd(), "summary", "-o", "markdown")
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "# QC network", "flag overrides env")

	cfg := config.GetCurrentConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestRun_VerboseLogsToStderr(t *testing.T) {
	res, err := run(t, "lots", "--verbose")
	require.NoError(t, err)
	assert.NotContains(t, res.Stdout, "level=")

	dir := testutil.IsolateConfig(t)
	testutil.WriteConfig(t, dir, "log_level: debug\n")
	ctx := commands.WithSnapshot(context.Background(), datasettest.Small(t))
	res, err = testutil.Execute(ctx, NewRootCmd(), "summary")
	require.NoError(t, err)
	assert.Contains(t, res.Stderr, "using config file")
}

func TestVersionAndCompletion(t *testing.T) {
	res, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "qcops v"+Version)

	res, err = run(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "qcops "+Version)
	assert.Contains(t, res.Stdout, "commit "+GitCommit)

	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		res, err = run(t, "completion", shell)
		require.NoError(t, err, shell)
		assert.Contains(t, res.Stdout, "qcops", shell)
	}

	_, err = run(t, "completion", "tcsh")
	assert.Error(t, err)
}

func TestGetConfigAndRenderer(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, config.DefaultOutput, GetConfig(ctx).Output)
	assert.Equal(t, output.ModeAuto, GetRenderer(ctx).Mode())

	cfg := &config.Config{Output: "json"}
	ctx = context.WithValue(ctx, configKey{}, cfg)
	assert.Same(t, cfg, GetConfig(ctx))
}
