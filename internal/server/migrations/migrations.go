// Package migrations embeds the goose SQL migrations for the platform's
// own PostgreSQL store. The tenant-owned mirror table is deliberately NOT
// part of these migrations; the tenant provisions it on their side.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
