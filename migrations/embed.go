// Package migrations embeds the baseline database schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
