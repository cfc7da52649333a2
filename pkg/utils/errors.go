package utils

import "errors"

// Sentinel errors for argument parsing and retries
var (
	// ErrInvalidDate indicates a date string is not ISO formatted (YYYY-MM-DD)
	ErrInvalidDate = errors.New("not a valid date")

	// ErrFileNotFound indicates a path does not point to a regular file
	ErrFileNotFound = errors.New("file does not exist")

	// ErrInvalidLandsatID indicates a Landsat scene ID could not be parsed
	ErrInvalidLandsatID = errors.New("invalid Landsat ID")

	// ErrInvalidWRS2 indicates a compact WRS2 tile string could not be parsed
	ErrInvalidWRS2 = errors.New("invalid WRS2 tile string")

	// ErrRetriesExhausted indicates every retry attempt failed
	ErrRetriesExhausted = errors.New("retries exhausted")
)
