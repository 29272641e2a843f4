package domain

import "errors"

// Domain sentinel errors. Handlers map them through pkg/errors.
var (
	ErrQueryTooShort      = errors.New("search text must be at least 2 characters")
	ErrInvalidAction      = errors.New("action must be one of created, updated, deleted")
	ErrMissingProductID   = errors.New("product id is required")
	ErrSearchUnavailable  = errors.New("search index unavailable")
	ErrResyncInProgress   = errors.New("a resync is already running")
	ErrCatalogUnavailable = errors.New("catalog export unavailable")
	ErrUnknownSpecFilter  = errors.New("unknown specification filter")
)
