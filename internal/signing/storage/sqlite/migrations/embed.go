package migrations

import "embed"

// FS contains embedded SQLite migrations for signing storage.
//
//go:embed *.sql
var FS embed.FS
