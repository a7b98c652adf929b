// Package database provides the SQLite upload registry.
//
// The registry records every stored upload and is the authority on name
// uniqueness: file names and slugs carry UNIQUE COLLATE NOCASE constraints,
// so two uploads racing for the same name cannot both be inserted.
//
// The schema is created on first open. Statistics for the metrics collector
// are recounted on every GetStats call.
package database
