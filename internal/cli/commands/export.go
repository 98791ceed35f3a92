package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/qcops/internal/cli/config"
	"github.com/leapstack-labs/qcops/internal/export"
)

// NewExportCommand creates the export command. Its flags are configuration
// keys under export.* and are read through the loaded config.
func NewExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy the dataset into a database",
		Long: fmt.Sprintf(`Copy one generated dataset into a SQLite, DuckDB or Postgres database for
offline analysis. The schema is created on first use and every export is
recorded with its own run id.

When an S3 bucket is configured the database file of a file-backed driver
is uploaded under <prefix>/<run id>/ after the export finishes.

Drivers: %s`, strings.Join(config.ExportDrivers, ", ")),
		Example: `  # SQLite file in the current directory
  qcops export --dsn qc.db

  # DuckDB, uploaded to a MinIO bucket
  qcops export --driver duckdb --dsn qc.duckdb \
    --s3-bucket qc-exports --s3-endpoint http://localhost:9000 --s3-path-style

  # Postgres; the password comes from the environment
  QCOPS_EXPORT__DSN='postgres://qc:${PGPASSWORD}@db/qc' qcops export --driver postgres`,
		Args: cobra.NoArgs,
		RunE: runExport,
	}

	cmd.Flags().String("driver", "", "Database driver (default: sqlite)")
	cmd.Flags().String("dsn", "", "Database DSN or file (default: qcops.db)")
	cmd.Flags().String("s3-bucket", "", "Upload the exported file to this bucket")
	cmd.Flags().String("s3-region", "", "Bucket region (default: us-east-1)")
	cmd.Flags().String("s3-endpoint", "", "S3-compatible endpoint URL")
	cmd.Flags().String("s3-prefix", "", "Key prefix inside the bucket")
	cmd.Flags().Bool("s3-path-style", false, "Use path-style bucket addressing")

	_ = cmd.RegisterFlagCompletionFunc("driver", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.ExportDrivers, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	ec := cc.Cfg.Export

	w, err := export.Open(ctx, ec.Driver, ec.DSN, cc.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	res, err := w.Write(ctx, cc.Snapshot)
	if err != nil {
		return err
	}
	// Flush the file before uploading it.
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close export database: %w", err)
	}

	if ec.S3.Enabled() {
		up, err := export.NewS3Uploader(ctx, export.S3Options{
			Bucket:    ec.S3.Bucket,
			Region:    ec.S3.Region,
			Endpoint:  ec.S3.Endpoint,
			Prefix:    ec.S3.Prefix,
			PathStyle: ec.S3.PathStyle,
		})
		if err != nil {
			return err
		}
		if err := export.UploadResult(ctx, up, res); err != nil {
			return err
		}
	}

	r := cc.Renderer
	if handled, err := r.Data(res); handled {
		return err
	}
	r.Success(fmt.Sprintf("Exported snapshot %s to %s", res.SnapshotID, res.Driver))
	r.KeyValue("Run", res.RunID)
	if res.Path != "" {
		r.KeyValue("File", res.Path)
	}
	if res.Location != "" {
		r.KeyValue("Uploaded", res.Location)
	}
	r.Table([]string{"Table", "Rows"}, [][]string{
		{"partners", fmt.Sprint(res.Partners)},
		{"lots", fmt.Sprint(res.Lots)},
		{"lineage_edges", fmt.Sprint(res.Edges)},
		{"deviations", fmt.Sprint(res.Deviations)},
		{"tech_transfers", fmt.Sprint(res.Transfers)},
	})
	return nil
}
