package export

import (
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
)

func init() {
	Register(Dialect{
		Name:         "postgres",
		DriverName:   "pgx",
		GooseDialect: "postgres",
		Numbered:     true,
	})
}
