package migrations

import "embed"

// Migrations holds the goose SQL files for the auth schema
//
//go:embed *.sql
var Migrations embed.FS
