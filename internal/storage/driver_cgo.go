//go:build cgo && !purego

package storage

import (
	_ "github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver used for the catalog.
const DriverName = "sqlite3"

// BuildMode reports which SQLite implementation was compiled in.
const BuildMode = "cgo"
