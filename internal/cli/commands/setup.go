package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/qcops/internal/cli/config"
	"github.com/leapstack-labs/qcops/internal/cli/output"
	"github.com/leapstack-labs/qcops/internal/dataset"
)

// snapshotKey is used to store a prebuilt snapshot in context.
type snapshotKey struct{}

// WithSnapshot returns a copy of ctx carrying snap. Commands run under it
// use snap instead of generating the dataset.
func WithSnapshot(ctx context.Context, snap *dataset.Snapshot) context.Context {
	return context.WithValue(ctx, snapshotKey{}, snap)
}

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	Snapshot *dataset.Snapshot
}

// NewCommandContext creates a CommandContext with a dataset snapshot and
// renderer.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cc, err := NewCommandContextWithoutData(cmd)
	if err != nil {
		return nil, err
	}
	snap, err := loadSnapshot(cmd.Context(), cc.Cfg, cc.Logger)
	if err != nil {
		return nil, err
	}
	cc.Snapshot = snap
	return cc, nil
}

// NewCommandContextWithoutData creates a CommandContext without a snapshot.
// Useful for commands that never look at the dataset.
func NewCommandContextWithoutData(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := getConfig(cmd)
	if err != nil {
		return nil, err
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output)),
	}, nil
}

// getConfig returns the configuration loaded by the root command, loading
// it from the command's own flags when the command runs standalone.
func getConfig(cmd *cobra.Command) (*config.Config, error) {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg, nil
	}
	return config.LoadConfig("", cmd.Flags())
}

func loadSnapshot(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*dataset.Snapshot, error) {
	if ctx != nil {
		if snap, ok := ctx.Value(snapshotKey{}).(*dataset.Snapshot); ok && snap != nil {
			return snap, nil
		}
	}
	snap, err := dataset.Generate(cfg.Data.SynthOptions(), dataset.Options{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("failed to generate dataset: %w", err)
	}
	return snap, nil
}
