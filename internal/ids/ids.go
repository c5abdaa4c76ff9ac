package ids

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// New returns a lexicographically sortable identifier used as a primary key.
// ulid.Make draws from a process-wide monotonic entropy source and is safe for concurrent use.
func New() string {
	return ulid.Make().String()
}

// Valid reports whether s looks like an identifier produced by New.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(strings.ToUpper(strings.TrimSpace(s)))
	return err == nil
}
