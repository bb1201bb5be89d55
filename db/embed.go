// Package db provides embedded database schema, migration and seed files.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// Seed is the default bakery catalog, coupons and auto-apply rules.
//
//go:embed seed/catalog.json
var Seed []byte
