// Package migrations embeds the schema and seed scripts.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sql/*.sql seeds/*.sql
var files embed.FS

// Schema returns the migration scripts.
func Schema() fs.FS {
	sub, _ := fs.Sub(files, "sql")
	return sub
}

// Seeds returns the reference data scripts.
func Seeds() fs.FS {
	sub, _ := fs.Sub(files, "seeds")
	return sub
}
