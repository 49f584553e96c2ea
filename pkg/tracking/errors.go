package tracking

import "errors"

var (
	// ErrAlreadyExists is returned by Insert when a notification with the
	// same ID is already stored. The stored document is left untouched.
	ErrAlreadyExists = errors.New("tracking: notification with this id already exists")

	// ErrNotFound is returned when a notification cannot be found by ID.
	ErrNotFound = errors.New("tracking: notification not found")

	// ErrIDRequired is returned when an operation is called with an empty ID.
	ErrIDRequired = errors.New("tracking: notification id is required")

	// ErrAppIDRequired is returned by Insert when the app ID is empty.
	ErrAppIDRequired = errors.New("tracking: app id is required")

	// ErrUserIDRequired is returned by Insert when the user ID is empty.
	ErrUserIDRequired = errors.New("tracking: user id is required")

	// ErrInvalidFieldPath is returned when a channel name or field would
	// produce an invalid document field path.
	ErrInvalidFieldPath = errors.New("tracking: invalid update field path")

	// ErrStorageNil is returned by NewTracker when no storage is provided.
	ErrStorageNil = errors.New("tracking: storage must not be nil")
)
