package migrations

import "embed"

// FS contains embedded SQLite migrations for pipeline storage.
//
//go:embed *.sql
var FS embed.FS
