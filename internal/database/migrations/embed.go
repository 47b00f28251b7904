// Package migrations carries the ordered SQL change-sets applied by the
// migration engine. Files follow the goose naming convention
// NNNNN_title.sql and are embedded into the binary.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
