// Package migrations embeds the appointment-service schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
