package migrations

import "embed"

// FS contains embedded SQLite migrations for dispatcher storage.
//
//go:embed *.sql
var FS embed.FS
