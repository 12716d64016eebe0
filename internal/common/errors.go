package common

import (
	"errors"
	"fmt"
)

var (

	// gateway/store specific errors
	ErrorNotFound   = errors.New("not found")
	ErrorIndexEmpty = errors.New("index is empty")

	// the index engine rejected or cannot serve a call right now;
	// callers surface this as "try again", never retry automatically
	ErrorIndexUnavailable = errors.New("index unavailable")

	// conditional archival write hit an existing primary key
	ErrorDuplicateRecord = errors.New("record already exists")

	// object/structured store transport failure
	ErrorTransfer = errors.New("transfer failed")

	// interactive-control payload with an unrecognized kind
	ErrorUnknownAction = errors.New("unknown action")

	// backfill over a chat that already has index records
	ErrorIndexNotEmpty = errors.New("chat index is not empty")
)

// EntityNotFoundError reports a chat or user reference that could not be
// resolved. The unresolved reference is kept so it can be shown to the caller.
type EntityNotFoundError struct {
	Entity string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("entity %q not found", e.Entity)
}

func NewEntityNotFoundError(entity string) *EntityNotFoundError {
	return &EntityNotFoundError{Entity: entity}
}
