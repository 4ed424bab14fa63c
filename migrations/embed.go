// Package migrations embeds the delivery log schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
