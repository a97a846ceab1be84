package errors

import (
	"errors"
	"fmt"
)

// QueryError is the base interface for all errors raised while building,
// translating, or validating a query. Storage errors are not wrapped in
// these types; they pass through from database/sql unchanged.
type QueryError interface {
	error
	Code() string
}

// TranslateError reports an expression the translator cannot map to SQL:
// an unsupported node kind, operator, or function, or a member access that
// does not resolve to a mapped column.
type TranslateError struct {
	Construct string // the offending node kind, operator, or function name
	Detail    string
}

func (e *TranslateError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("cannot translate %s: %s", e.Construct, e.Detail)
	}
	return fmt.Sprintf("cannot translate %s", e.Construct)
}

func (e *TranslateError) Code() string {
	return "TRANSLATE_ERROR"
}

// NewTranslateError creates a new TranslateError
func NewTranslateError(construct, detail string) *TranslateError {
	return &TranslateError{Construct: construct, Detail: detail}
}

// SchemaError reports invalid or missing entity metadata: a descriptor
// without a primary key, a duplicate column, an unknown navigation or
// foreign key, or a value that cannot be converted to the mapped field.
type SchemaError struct {
	Entity string
	Member string // column, field, or navigation name; may be empty
	Detail string
}

func (e *SchemaError) Error() string {
	if e.Member != "" {
		return fmt.Sprintf("schema error on %s.%s: %s", e.Entity, e.Member, e.Detail)
	}
	return fmt.Sprintf("schema error on %s: %s", e.Entity, e.Detail)
}

func (e *SchemaError) Code() string {
	return "SCHEMA_ERROR"
}

// NewSchemaError creates a new SchemaError
func NewSchemaError(entity, member, detail string) *SchemaError {
	return &SchemaError{Entity: entity, Member: member, Detail: detail}
}

// PlanError reports an invalid sequence of calls on a query plan, such as
// ThenBy without OrderBy, Having without GroupBy, or mutation of a plan
// that has already been projected.
type PlanError struct {
	Clause string
	Detail string
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("invalid %s clause: %s", e.Clause, e.Detail)
}

func (e *PlanError) Code() string {
	return "PLAN_ERROR"
}

// NewPlanError creates a new PlanError
func NewPlanError(clause, detail string) *PlanError {
	return &PlanError{Clause: clause, Detail: detail}
}

// NavigationError reports an invalid include: a duplicate path, a path
// deeper than the configured maximum, or a relationship that closes a
// cycle in the navigation graph.
type NavigationError struct {
	Path   string
	Detail string
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("invalid include %q: %s", e.Path, e.Detail)
}

func (e *NavigationError) Code() string {
	return "NAVIGATION_ERROR"
}

// NewNavigationError creates a new NavigationError
func NewNavigationError(path, detail string) *NavigationError {
	return &NavigationError{Path: path, Detail: detail}
}

// Helper functions for error checking

// IsTranslate checks if an error is a TranslateError
func IsTranslate(err error) bool {
	var te *TranslateError
	return errors.As(err, &te)
}

// IsSchema checks if an error is a SchemaError
func IsSchema(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// IsPlan checks if an error is a PlanError
func IsPlan(err error) bool {
	var pe *PlanError
	return errors.As(err, &pe)
}

// IsNavigation checks if an error is a NavigationError
func IsNavigation(err error) bool {
	var ne *NavigationError
	return errors.As(err, &ne)
}

// GetCode returns the error code for an error, or "UNKNOWN_ERROR" if the
// error is not a QueryError.
func GetCode(err error) string {
	var qe QueryError
	if errors.As(err, &qe) {
		return qe.Code()
	}
	return "UNKNOWN_ERROR"
}
