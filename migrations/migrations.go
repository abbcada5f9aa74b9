// Package migrations embeds the SQL schema so the binary and tests can apply it.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
