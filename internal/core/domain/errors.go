package domain

import "errors"

var (
	// ErrRecordNotFound is returned when no record exists for a subject.
	ErrRecordNotFound = errors.New("access record not found")
	// ErrInvalidTransition is returned when an action is illegal from the current status.
	ErrInvalidTransition = errors.New("invalid access transition")
	// ErrConcurrentModification is returned when the record changed between read and write.
	ErrConcurrentModification = errors.New("access record modified concurrently")
	// ErrStoreUnavailable wraps failures of the underlying store.
	ErrStoreUnavailable = errors.New("access store unavailable")
	// ErrAlreadyExists is returned when creating a record for a subject that already has one.
	ErrAlreadyExists = errors.New("access record already exists")
	// ErrInvalidSubject is returned for subject ids that are not usable email addresses.
	ErrInvalidSubject = errors.New("invalid subject id")
	// ErrMalformedRecord marks a stored record that violates the record invariants.
	ErrMalformedRecord = errors.New("malformed access record")
)
