// Package migrations carries the schema migration files compiled into
// the binary, so startup does not depend on the working directory.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
