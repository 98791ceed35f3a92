package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/qcops/internal/dataset/datasettest"
	"github.com/leapstack-labs/qcops/internal/testutil"
)

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"duckdb", "postgres", "sqlite"}, List())

	d, ok := Get("postgres")
	require.True(t, ok)
	assert.Equal(t, "pgx", d.DriverName)

	_, err := Open(context.Background(), "mysql", "x", nil)
	var unknown *UnknownDriverError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "mysql", unknown.Driver)
	assert.Contains(t, err.Error(), "Available drivers")
}

func TestInsertSQL(t *testing.T) {
	tests := []struct {
		dialect string
		want    string
	}{
		{"sqlite", "INSERT INTO lineage_edges (run_id, parent, child) VALUES (?, ?, ?)"},
		{"duckdb", "INSERT INTO lineage_edges (run_id, parent, child) VALUES (?, ?, ?)"},
		{"postgres", "INSERT INTO lineage_edges (run_id, parent, child) VALUES ($1, $2, $3)"},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			d, ok := Get(tt.dialect)
			require.True(t, ok)
			w := NewWriter(nil, d, nil)
			assert.Equal(t, tt.want, w.insertSQL("lineage_edges", edgeColumns))
		})
	}
}

func TestLocalPath(t *testing.T) {
	tests := map[string]string{
		"qcops.db":                       "qcops.db",
		"file:out/qcops.db?cache=shared": "out/qcops.db",
		":memory:":                       "",
		"file::memory:?cache=shared":     "",
		"":                               "",
	}
	for in, want := range tests {
		assert.Equal(t, want, localPath(in), in)
	}
}

func expectRows(mock sqlmock.Sqlmock, table string, n int) {
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO " + table + " ("))
	for range n {
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	}
}

func TestWrite_SQLMock(t *testing.T) {
	snap := datasettest.Small(t)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	d, _ := Get("postgres")
	w := NewWriter(db, d, testutil.NewTestLogger(t))
	fixed := time.Date(2023, 10, 28, 9, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO export_runs (id, snapshot_id, seed, reference_date, exported_at) VALUES ($1, $2, $3, $4, $5)")).
		WithArgs(sqlmock.AnyArg(), "test-snapshot", "1", "2023-10-27", fixed).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectRows(mock, "partners", len(snap.Partners()))
	expectRows(mock, "lots", len(snap.Lots()))
	expectRows(mock, "lineage_edges", len(snap.Edges()))
	expectRows(mock, "deviations", len(snap.Deviations()))
	expectRows(mock, "tech_transfers", len(snap.Transfers()))
	mock.ExpectCommit()

	res, err := w.Write(context.Background(), snap)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "postgres", res.Driver)
	assert.Equal(t, "test-snapshot", res.SnapshotID)
	assert.Equal(t, fixed, res.ExportedAt)
	assert.Equal(t, 5, res.Partners)
	assert.Equal(t, 13, res.Lots)
	assert.Equal(t, 9, res.Edges)
	assert.Equal(t, 3, res.Deviations)
	assert.Equal(t, len(snap.Transfers()), res.Transfers)
	assert.Empty(t, res.Path)
}

func TestWrite_RollsBack(t *testing.T) {
	snap := datasettest.Small(t)

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr string
	}{
		{
			name: "run row fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO export_runs").WillReturnError(errors.New("disk full"))
				mock.ExpectRollback()
			},
			wantErr: "failed to record export run: disk full",
		},
		{
			name: "lot insert fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO export_runs").WillReturnResult(sqlmock.NewResult(0, 1))
				expectRows(mock, "partners", len(snap.Partners()))
				mock.ExpectPrepare("INSERT INTO lots").ExpectExec().WillReturnError(errors.New("constraint"))
				mock.ExpectRollback()
			},
			wantErr: "failed to insert into lots: constraint",
		},
		{
			name: "begin fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(errors.New("locked"))
			},
			wantErr: "failed to begin export",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer func() { _ = db.Close() }()
			tt.setup(mock)

			d, _ := Get("sqlite")
			_, err = NewWriter(db, d, nil).Write(context.Background(), snap)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func count(t *testing.T, w *Writer, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, w.db.QueryRow(query, args...).Scan(&n))
	return n
}

func TestOpen_SQLiteInMemory(t *testing.T) {
	ctx := context.Background()
	snap := datasettest.Small(t)

	w, err := Open(ctx, "SQLite", ":memory:", testutil.NewTestLogger(t))
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	first, err := w.Write(ctx, snap)
	require.NoError(t, err)
	assert.Empty(t, first.Path)

	assert.Equal(t, 13, count(t, w, "SELECT COUNT(*) FROM lots WHERE run_id = ?", first.RunID))
	assert.Equal(t, 1, count(t, w, "SELECT COUNT(*) FROM lots WHERE run_id = ? AND released_at IS NULL AND id = 'DM1-DP-401'", first.RunID))
	assert.Equal(t, 2, count(t, w, "SELECT COUNT(*) FROM lots WHERE run_id = ? AND purity IS NOT NULL", first.RunID))
	assert.Equal(t, 3, count(t, w, "SELECT COUNT(*) FROM deviations WHERE run_id = ?", first.RunID))

	// Migrations are idempotent and runs accumulate.
	require.NoError(t, w.Migrate(ctx))
	second, err := w.Write(ctx, snap)
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 2, count(t, w, "SELECT COUNT(*) FROM export_runs"))
	assert.Equal(t, 26, count(t, w, "SELECT COUNT(*) FROM lots"))
}

func TestOpen_SQLiteFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "qcops.db")

	w, err := Open(ctx, "sqlite", path, nil)
	require.NoError(t, err)
	res, err := w.Write(ctx, datasettest.Small(t))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, path, res.Path)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

type fakeUploader struct {
	key  string
	body []byte
	err  error
}

func (f *fakeUploader) Upload(_ context.Context, key string, body io.ReadSeeker, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.key = key
	f.body, _ = io.ReadAll(body)
	return "mem://" + key, nil
}

func TestUploadResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qcops.db")
	require.NoError(t, os.WriteFile(path, []byte("db bytes"), 0o600))

	up := &fakeUploader{}
	res := &Result{RunID: "run-1", Driver: "sqlite", Path: path}
	require.NoError(t, UploadResult(context.Background(), up, res))
	assert.Equal(t, "run-1/qcops.db", up.key)
	assert.Equal(t, "db bytes", string(up.body))
	assert.Equal(t, "mem://run-1/qcops.db", res.Location)

	err := UploadResult(context.Background(), up, &Result{Driver: "postgres"})
	assert.ErrorContains(t, err, "no local file")

	up.err = errors.New("denied")
	assert.ErrorContains(t, UploadResult(context.Background(), up, res), "denied")
}

func TestS3Uploader(t *testing.T) {
	var (
		mu      sync.Mutex
		gotPath string
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "unexpected method", http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotPath, gotBody = r.URL.Path, body
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	up, err := NewS3Uploader(context.Background(), S3Options{
		Bucket:      "qc-exports",
		Endpoint:    srv.URL,
		Prefix:      "/nightly/",
		PathStyle:   true,
		Credentials: credentials.NewStaticCredentialsProvider("AKIA", "SECRET", ""),
	})
	require.NoError(t, err)

	loc, err := up.Upload(context.Background(), "run-1/qcops.db", bytes.NewReader([]byte("payload")), "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "s3://qc-exports/nightly/run-1/qcops.db", loc)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/qc-exports/nightly/run-1/qcops.db", gotPath)
	assert.True(t, strings.HasSuffix(string(gotBody), "payload"), string(gotBody))
}

func TestNewS3Uploader_RequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(context.Background(), S3Options{})
	assert.ErrorContains(t, err, "bucket required")
}
