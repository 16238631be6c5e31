package migrations

import "embed"

// FS contains embedded SQLite migrations for feedback storage.
//
//go:embed *.sql
var FS embed.FS
