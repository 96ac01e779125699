package store

import (
	"errors"
	"strings"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrVersionConflict is returned by a compare-and-set write whose expected version is stale.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicate is returned when an insert collides with a uniqueness rule.
	ErrDuplicate = errors.New("duplicate record")
	// ErrNotFound is returned by writes that target a missing record.
	ErrNotFound = errors.New("record not found")
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	// Older drivers report only the primary result code.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
