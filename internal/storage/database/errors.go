package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/joshu-sajeev/previewq/internal/queue"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// IsContention reports whether err came from another writer winning a
// race: sqlite BUSY/LOCKED, a postgres serialization or lock failure, or
// a unique violation on the one-lock-per-job index.
func IsContention(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, queue.ErrContention) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return true
		case sqlite3.ErrConstraint:
			return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
		}
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "23505":
			return true
		}
	}

	return false
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	return false
}
