// Package migrations ships the service schema with the binary.
package migrations

import "embed"

// FS holds the ordered *.sql schema files applied by utils.Migrate.
//
//go:embed *.sql
var FS embed.FS
