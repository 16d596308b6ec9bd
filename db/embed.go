// Package db provides the embedded database schema and the demo catalog.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// Catalog is the demo product and coupon set loaded by cmd/seed-db and by
// the in-memory store.
//
//go:embed seed/catalog.json
var Catalog []byte
