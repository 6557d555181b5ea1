// Package migrations embeds the goose schema migrations for the upload
// session registry.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
