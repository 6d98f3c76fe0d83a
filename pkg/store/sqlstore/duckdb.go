//go:build cgo

package sqlstore

// The DuckDB driver needs cgo. Without it DriverDuckDB fails at open time
// with an unknown driver error.
import _ "github.com/marcboeker/go-duckdb"
