// Package migrations embeds the goose SQL migrations for the auth, ml and
// demo schemas.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
