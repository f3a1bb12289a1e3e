package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/threatdocs/threatdocs-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "confidence_range"):
		return errors.Validation(map[string]string{
			"confidence_threshold": "must be between 0 and 1",
		})

	case strings.Contains(constraint, "priority_non_negative"):
		return errors.Validation(map[string]string{
			"priority": "must not be negative",
		})

	case strings.Contains(constraint, "page_number_positive"):
		return errors.Validation(map[string]string{
			"page_number": "must be 1 or greater",
		})

	case strings.Contains(constraint, "no_self_inheritance"):
		return errors.Validation(map[string]string{
			"parent_template_id": "a template cannot inherit from itself",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "templates_name"):
		return "a template with this name already exists"
	case strings.Contains(constraint, "inheritance_child_parent"):
		return "this inheritance relationship already exists"
	case strings.Contains(constraint, "match_cache_fingerprint"):
		return "a cache entry for this document and template already exists"
	default:
		return "a record with these values already exists"
	}
}
