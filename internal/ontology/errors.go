package ontology

import "errors"

// Sentinel errors for edit operations. A failed edit leaves the store unchanged.
var (
	// ErrNotFound is returned when the identifier being read, updated or
	// deleted is unknown.
	ErrNotFound = errors.New("not found")

	// ErrInvalidReference is returned when an edit would create a dangling or
	// role-incompatible link: an unknown concept, role or entity type, a role
	// of a different concept, identical subject and object roles, or an
	// entity type whose role the target slot does not accept.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrInvalidValue is returned for malformed enumerations: an unknown
	// trigger, effect, expression kind or entity role tag.
	ErrInvalidValue = errors.New("invalid value")
)
