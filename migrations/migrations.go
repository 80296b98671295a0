package migrations

import "embed"

// Embedded audit-log migrations, one directory per driver.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
