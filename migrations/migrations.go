// Package migrations embeds the SQL schema for the payments ledger and the
// order and invoice projections. The files run unchanged on PostgreSQL and
// SQLite.
package migrations

import "embed"

// FS holds every *.up.sql and *.down.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
