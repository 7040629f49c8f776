// Package migrations embeds the goose SQL migration files.
//
// Files are named YYYYMMDDHHMMSS_description.sql and applied in order
// during startup, before any worker or API mode begins serving.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
