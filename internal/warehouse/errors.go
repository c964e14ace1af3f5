package warehouse

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Load-stage failure classes, checked with errors.Is.
var (
	// ErrSchema marks an incompatible table shape or a constraint/data
	// failure. Never retried.
	ErrSchema = errors.New("warehouse: schema error")
	// ErrConnection marks a connection-level failure that survived the
	// per-batch retry budget.
	ErrConnection = errors.New("warehouse: connection error")
)

// schemaClass reports whether the database error is a schema, constraint, or
// data problem rather than a connection one. Retrying those wastes the
// budget: the same statement fails the same way.
func schemaClass(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || len(pgErr.Code) < 2 {
		return false
	}
	switch pgErr.Code[:2] {
	case "42", "23", "22":
		return true
	}
	return false
}
