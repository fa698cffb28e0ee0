// Package migrations embeds the Postgres schema migrations so the server can
// apply them through the goose provider API at startup.
package migrations

import "embed"

// FS holds all *.sql migration files embedded at compile time.
//
//go:embed *.sql
var FS embed.FS
