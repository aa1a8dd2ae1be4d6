package migrations

import "embed"

// FS contains embedded SQLite migrations for the temperature cache.
//
//go:embed *.sql
var FS embed.FS
