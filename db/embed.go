// Package db embeds the database schema applied on startup.
package db

import _ "embed"

// Schema contains the DDL statements for the discount tables.
//
//go:embed migrations/001_schema.sql
var Schema string
