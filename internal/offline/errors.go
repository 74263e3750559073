package offline

import "errors"

var (
	// ErrStorageUnavailable means the persistence layer could not be opened.
	// Offline capture is impossible until it is resolved.
	ErrStorageUnavailable = errors.New("offline storage unavailable")

	// ErrItemNotFound is returned by UpdateRetryCount when the item was
	// removed concurrently. Callers treat it as benign.
	ErrItemNotFound = errors.New("offline item not found")

	// ErrInvalidItem means a stored record failed validation on read or an
	// item was rejected on write.
	ErrInvalidItem = errors.New("invalid offline item")
)
