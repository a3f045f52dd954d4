// Package migrations embeds the SQL schema so binaries can apply it without
// shipping the files separately.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
