package sqlite

import "embed"

// Migrations holds the schema of the request store, applied with
// database.Migrator under MigrationsDir.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations holding the .sql files
const MigrationsDir = "migrations"
