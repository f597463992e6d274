package memory

import "errors"

var (
	// ErrPermissionDenied is returned when an access check fails.
	// Access is fail-closed: an entity with no recorded policy is
	// unreadable for everyone except admin.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrValidation is returned when an entity is missing a required
	// field or a field is out of range. Raised before any backend call.
	ErrValidation = errors.New("entity validation failed")

	// ErrUnknownTier is returned when an entity names a tier no backend
	// is registered for.
	ErrUnknownTier = errors.New("unknown memory tier")

	// ErrChecksumMismatch is returned when a stored entity's checksum
	// does not match a fresh recomputation over its content.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrWrongEntityKind is returned by a tier backend handed an entity
	// variant it does not own.
	ErrWrongEntityKind = errors.New("wrong entity kind for tier")
)
