package database

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/smartpharmacy/smartpos-backend/pkg/errors"
)

// MapPQError converts PostgreSQL driver errors into domain errors so
// handlers can map them to sensible HTTP responses.
func MapPQError(err error, entity string) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code {
	case "23505": // unique_violation
		return errors.Conflict(fmt.Sprintf("%s already exists", entity)).WithDetails(map[string]string{
			"constraint": pqErr.Constraint,
		})
	case "23503": // foreign_key_violation
		return errors.BadRequest(fmt.Sprintf("%s references a missing record", entity)).WithDetails(map[string]string{
			"constraint": pqErr.Constraint,
		})
	case "23514": // check_violation
		// stock and quantity columns carry non-negative checks
		if strings.Contains(pqErr.Constraint, "stock") || strings.Contains(pqErr.Constraint, "quantity") {
			return errors.Conflict(fmt.Sprintf("%s stock cannot go negative", entity))
		}
		return errors.BadRequest(fmt.Sprintf("%s violates constraint %s", entity, pqErr.Constraint))
	case "23502": // not_null_violation
		return errors.BadRequest(fmt.Sprintf("%s is missing required field %s", entity, pqErr.Column))
	default:
		return err
	}
}
