package receipts

import "errors"

// Common errors for session store operations.
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidStoreType = errors.New("invalid store type")
	ErrVersionConflict  = errors.New("session version conflict")
	ErrNotFound         = errors.New("session not found")
	ErrAlreadyExists    = errors.New("session already exists")
	ErrStoreClosed      = errors.New("session store closed")
)

// Errors returned by the receipt pipeline.
var (
	ErrMissingCustomerKey = errors.New("customerPlatformId obrigatório")
	ErrMissingAttachment  = errors.New("attachment_url obrigatório")
	ErrInvalidValue       = errors.New("item value must be positive")
	ErrFetchFailed        = errors.New("attachment fetch failed")
	ErrEmptyDocument      = errors.New("document has no extractable text")
	ErrReportFailed       = errors.New("conversion report failed")
)
