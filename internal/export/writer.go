package export

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"github.com/leapstack-labs/qcops/internal/dataset"
)

//go:embed migrations
var migrations embed.FS

// goose keeps its dialect and filesystem in package globals.
var migrateMu sync.Mutex

// Result summarises one export.
type Result struct {
	RunID      string    `json:"run_id"`
	Driver     string    `json:"driver"`
	SnapshotID string    `json:"snapshot_id"`
	ExportedAt time.Time `json:"exported_at"`
	Partners   int       `json:"partners"`
	Lots       int       `json:"lots"`
	Edges      int       `json:"edges"`
	Deviations int       `json:"deviations"`
	Transfers  int       `json:"transfers"`
	// Path is the database file written, for file-backed drivers.
	Path string `json:"path,omitempty"`
	// Location is where the file was uploaded, if it was.
	Location string `json:"location,omitempty"`
}

// Writer copies snapshots into one database.
type Writer struct {
	db      *sql.DB
	dialect Dialect
	path    string
	logger  *slog.Logger
	now     func() time.Time
}

// NewWriter wraps an open database. It does not run migrations.
func NewWriter(db *sql.DB, d Dialect, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{db: db, dialect: d, logger: logger, now: time.Now}
}

// Open connects to the database selected by driver, brings its schema up
// to date and returns a writer for it.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Writer, error) {
	d, ok := Get(strings.ToLower(driver))
	if !ok {
		return nil, &UnknownDriverError{Driver: driver, Available: List()}
	}
	if dsn == "" {
		return nil, fmt.Errorf("export dsn is empty")
	}

	db, err := sql.Open(d.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.Name, err)
	}
	if d.MaxOpenConns > 0 {
		db.SetMaxOpenConns(d.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", d.Name, err)
	}

	w := NewWriter(db, d, logger)
	if d.FileBacked {
		w.path = localPath(dsn)
	}
	if err := w.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// localPath extracts the file name from a file DSN, or "" for in-memory
// databases.
func localPath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" || p == ":memory:" {
		return ""
	}
	return p
}

// Close closes the database.
func (w *Writer) Close() error {
	if w.db == nil {
		return nil
	}
	w.logger.Debug("closing export database", "driver", w.dialect.Name)
	return w.db.Close()
}

// Migrate creates or upgrades the export schema.
func (w *Writer) Migrate(ctx context.Context) error {
	if w.dialect.GooseDialect == "" {
		if _, err := w.db.ExecContext(ctx, w.dialect.Schema); err != nil {
			return fmt.Errorf("failed to apply %s schema: %w", w.dialect.Name, err)
		}
		return nil
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{w.logger})
	if err := goose.SetDialect(w.dialect.GooseDialect); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, w.db, "migrations/"+w.dialect.Name); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// gooseLogger routes goose's progress lines to slog.
type gooseLogger struct{ l *slog.Logger }

func (g gooseLogger) Printf(format string, v ...any) {
	g.l.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.l.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

var (
	runColumns       = []string{"id", "snapshot_id", "seed", "reference_date", "exported_at"}
	partnerColumns   = []string{"run_id", "name", "role", "specialty", "location", "lat", "lon", "sla_days"}
	lotColumns       = []string{"run_id", "id", "product", "stage", "partner", "status", "created_at", "released_at", "sla_days", "actual_tat_days", "purity", "main_impurity", "aggregate_level"}
	edgeColumns      = []string{"run_id", "parent", "child"}
	deviationColumns = []string{"run_id", "id", "lot_id", "product", "partner", "type", "status", "age_days", "root_cause"}
	transferColumns  = []string{"run_id", "partner", "method", "from_site", "status", "target_date"}
)

// insertSQL builds a single-row INSERT for table.
func (w *Writer) insertSQL(table string, columns []string) string {
	marks := make([]string, len(columns))
	for i := range columns {
		marks[i] = w.dialect.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), strings.Join(marks, ", "))
}

// Write copies snap in one transaction, tagging every row with a fresh run
// id. Earlier runs are left in place.
func (w *Writer) Write(ctx context.Context, snap *dataset.Snapshot) (res *Result, err error) {
	meta := snap.Meta()
	res = &Result{
		RunID:      uuid.NewString(),
		Driver:     w.dialect.Name,
		SnapshotID: meta.ID,
		ExportedAt: w.now().UTC(),
		Path:       w.path,
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin export: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, w.insertSQL("export_runs", runColumns),
		res.RunID, meta.ID, strconv.FormatUint(meta.Seed, 10), meta.ReferenceDate.Format(time.DateOnly), res.ExportedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to record export run: %w", err)
	}

	partners := snap.Partners()
	if res.Partners, err = w.insertRows(ctx, tx, res.RunID, "partners", partnerColumns, len(partners), func(i int) []any {
		p := partners[i]
		return []any{p.Name, string(p.Role), p.Specialty, p.Location, p.Latitude, p.Longitude, p.SLADays}
	}); err != nil {
		return nil, err
	}

	lots := snap.Lots()
	if res.Lots, err = w.insertRows(ctx, tx, res.RunID, "lots", lotColumns, len(lots), func(i int) []any {
		l := lots[i]
		return []any{
			l.ID, string(l.Product), string(l.Stage), l.Partner, string(l.Status),
			l.CreatedAt, nullTime(l.ReleasedAt), l.SLADays, l.ActualTATDays,
			nullFloat(l.Attributes.Purity), nullFloat(l.Attributes.MainImpurity), nullFloat(l.Attributes.Aggregate),
		}
	}); err != nil {
		return nil, err
	}

	edges := snap.Edges()
	if res.Edges, err = w.insertRows(ctx, tx, res.RunID, "lineage_edges", edgeColumns, len(edges), func(i int) []any {
		return []any{edges[i].Parent, edges[i].Child}
	}); err != nil {
		return nil, err
	}

	devs := snap.Deviations()
	if res.Deviations, err = w.insertRows(ctx, tx, res.RunID, "deviations", deviationColumns, len(devs), func(i int) []any {
		d := devs[i]
		return []any{d.ID, d.LotID, string(d.Product), d.Partner, string(d.Type), string(d.Status), d.AgeDays, d.RootCause}
	}); err != nil {
		return nil, err
	}

	transfers := snap.Transfers()
	if res.Transfers, err = w.insertRows(ctx, tx, res.RunID, "tech_transfers", transferColumns, len(transfers), func(i int) []any {
		t := transfers[i]
		return []any{t.Partner, t.Method, t.From, t.Status, t.TargetDate}
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit export: %w", err)
	}
	w.logger.Info("snapshot exported",
		"driver", res.Driver, "run", res.RunID, "lots", res.Lots, "deviations", res.Deviations)
	return res, nil
}

// insertRows prepares one INSERT and runs it n times.
func (w *Writer) insertRows(ctx context.Context, tx *sql.Tx, runID, table string, columns []string, n int, row func(i int) []any) (int, error) {
	if n == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, w.insertSQL(table, columns))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare %s insert: %w", table, err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range n {
		args := append([]any{runID}, row(i)...)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return i, fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return n, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
