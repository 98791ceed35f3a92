package export

import (
	_ "embed"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

//go:embed duckdb_schema.sql
var duckdbSchema string

func init() {
	Register(Dialect{
		Name:         "duckdb",
		DriverName:   "duckdb",
		Schema:       duckdbSchema,
		FileBacked:   true,
		MaxOpenConns: 1,
	})
}
