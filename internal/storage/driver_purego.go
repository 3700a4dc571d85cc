//go:build !cgo || purego

package storage

import (
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver used for the catalog.
const DriverName = "sqlite"

// BuildMode reports which SQLite implementation was compiled in.
const BuildMode = "purego"
