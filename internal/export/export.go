// Package export copies a dataset snapshot into a SQL database for offline
// analysis and optionally uploads the resulting file to S3.
//
// Each supported database registers a Dialect from its init function. The
// SQLite and Postgres schemas are managed with goose migrations; DuckDB,
// which goose does not speak, gets its schema applied directly.
package export

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Dialect describes one export target.
type Dialect struct {
	// Name is the value of export.driver.
	Name string
	// DriverName is the database/sql driver to open.
	DriverName string
	// GooseDialect selects the goose dialect. Empty means the schema is
	// applied from Schema instead.
	GooseDialect string
	// Schema is DDL executed when GooseDialect is empty.
	Schema string
	// Numbered selects $1-style placeholders instead of ?.
	Numbered bool
	// FileBacked reports whether the DSN names a local file that can be
	// uploaded after the export.
	FileBacked bool
	// MaxOpenConns, when positive, caps the connection pool.
	MaxOpenConns int
}

// Placeholder returns the bind parameter for the 1-based position i.
func (d Dialect) Placeholder(i int) string {
	if d.Numbered {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Dialect)
)

// Register adds a dialect. Called from init functions.
func Register(d Dialect) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Name] = d
}

// Get looks a dialect up by name.
func Get(name string) (Dialect, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[name]
	return d, ok
}

// List returns the registered dialect names, sorted.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownDriverError is returned when export.driver names no dialect.
type UnknownDriverError struct {
	Driver    string
	Available []string
}

func (e *UnknownDriverError) Error() string {
	return fmt.Sprintf("unknown export driver %q\nAvailable drivers: %v\nHint: check export.driver in qcops.yaml", e.Driver, e.Available)
}
