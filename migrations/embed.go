// Package migrations embeds the Tally Core schema migrations into the binary.
//
// The files are passed to database.Open through Options.Migrations so the
// service can migrate without the SQL present on disk.
package migrations

import "embed"

// FS holds every *.up.sql / *.down.sql file at its root.
//
//go:embed *.sql
var FS embed.FS

// Dir is the directory within FS that holds the migration files.
const Dir = "."
