package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation. When
// constraintName is provided the violation must reference that constraint.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	if pg, ok := pkgerrors.AsPostgres(err); ok {
		return pg.Code == pgUniqueViolation &&
			(constraintName == "" || pg.Constraint == constraintName)
	}

	// sqlite has no typed error here, match on the driver message
	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return true
}

// IsPostgres reports whether the connection speaks the postgres dialect.
func IsPostgres(name string) bool {
	return name == DriverPostgres
}
