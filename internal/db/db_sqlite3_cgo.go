//go:build cgo && sqlite3_cgo

package db

import (
	_ "github.com/mattn/go-sqlite3"
)

const sqliteDriverID = "mattn/go-sqlite3"
const sqliteDriverName = "sqlite3"
