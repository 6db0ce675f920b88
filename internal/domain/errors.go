package domain

import "errors"

var (
	// ErrNotFound is returned when a requested document does not exist
	ErrNotFound = errors.New("document not found")

	// ErrUnauthorized is returned when the request carries no valid credentials
	ErrUnauthorized = errors.New("unauthorized")

	// ErrPermissionDenied is returned when the caller may not access the resource
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidArgument is returned when request parameters are invalid
	ErrInvalidArgument = errors.New("invalid request parameters")

	// ErrTxConflict is returned by a store when a transaction lost a write
	// conflict and should be retried
	ErrTxConflict = errors.New("transaction conflict")

	// ErrRetryExhausted is returned when the transaction retry budget ran out
	ErrRetryExhausted = errors.New("transaction retry budget exhausted")

	// ErrOCRFailure is returned when the OCR backend call fails
	ErrOCRFailure = errors.New("ocr text detection failed")

	// ErrEmptyOCRText is returned when the OCR backend returns no text
	ErrEmptyOCRText = errors.New("ocr returned empty text")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrStoreUnavailable is returned when the store cannot be reached
	ErrStoreUnavailable = errors.New("store unavailable")
)
