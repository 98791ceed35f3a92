package export

import (
	_ "modernc.org/sqlite" // sqlite driver
)

func init() {
	Register(Dialect{
		Name:         "sqlite",
		DriverName:   "sqlite",
		GooseDialect: "sqlite3",
		FileBacked:   true,
		// A single connection keeps ":memory:" databases alive and
		// serialises writers on file databases.
		MaxOpenConns: 1,
	})
}
