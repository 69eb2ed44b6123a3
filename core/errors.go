package core

import "errors"

// The error kinds shared across store, resolver and authorizer. Operations wrap
// these with fmt.Errorf and %w, callers test with errors.Is and map them to
// status codes.
//
// A missing record on read is deliberately not part of this list. Single-record
// reads report absence with a boolean so that "not found" stays a normal
// outcome and not an error path.
var (
	// ErrResourceNotFound means the resource name is not declared in the configuration.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrRelationshipNotFound means an expand path references an undeclared
	// relationship or exceeds the maximum expansion depth.
	ErrRelationshipNotFound = errors.New("relationship not found")
	// ErrValidation means the payload or query input is malformed, for example a
	// duplicate primary key on create or an unknown filter operator.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthenticated means the action requires a principal but none was provided.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the principal is not permitted to perform the action.
	ErrForbidden = errors.New("forbidden")
)
