// Package migrations embeds the SQL schema applied by the importer.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
