// Package migrations embeds the SQL migration files for cache.db.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
