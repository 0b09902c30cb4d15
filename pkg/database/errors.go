package database

import (
	"github.com/go-sql-driver/mysql"
	"github.com/larder/larder-backend/pkg/errors"
	"github.com/lib/pq"
)

// MapDriverError converts a PostgreSQL or MySQL error to an AppError.
// Returns nil if the error is not a known driver error or has no mapping.
func MapDriverError(err error) *errors.AppError {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return mapPQError(pqErr)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return mapMySQLError(myErr)
	}

	return nil
}

func mapPQError(pqErr *pq.Error) *errors.AppError {
	switch pqErr.Code {
	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict("a pantry item with this id already exists")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	// Undefined table (42P01)
	case "42P01":
		return errors.Internal("pantry schema missing - run with storage schema bootstrap enabled")

	default:
		return nil
	}
}

func mapMySQLError(myErr *mysql.MySQLError) *errors.AppError {
	switch myErr.Number {
	// ER_DUP_ENTRY
	case 1062:
		return errors.Conflict("a pantry item with this id already exists")

	// ER_BAD_NULL_ERROR
	case 1048:
		return errors.Validation(map[string]string{
			"document": "must not be empty",
		})

	// ER_NO_SUCH_TABLE
	case 1146:
		return errors.Internal("pantry schema missing - run with storage schema bootstrap enabled")

	default:
		return nil
	}
}
