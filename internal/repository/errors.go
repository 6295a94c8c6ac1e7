package repository

import "errors"

// Sentinel errors surfaced by repositories so services can map them onto
// typed API errors without parsing driver messages.
var (
	// ErrLastAdmin is returned when a role change or delete would leave
	// the system without any administrator.
	ErrLastAdmin = errors.New("last remaining administrator")

	// ErrDuplicateEnrollment is returned when a (student, course) pair
	// already holds an enrollment record, whatever its status.
	ErrDuplicateEnrollment = errors.New("enrollment already exists")

	// ErrSerialization is returned when a transaction lost a concurrency
	// conflict and can be retried.
	ErrSerialization = errors.New("transaction serialization failure")
)
