package repository

import "errors"

// Sentinel kinds for storage errors. Missing rows are reported with the
// domain's model.NotFound so callers can map them uniformly.
var (
	ErrTxDone          = errors.New("transaction already committed or rolled back")
	ErrSchemaTooNew    = errors.New("database schema is newer than this binary")
	ErrInvalidProgress = errors.New("progress must be between 0 and 100")
)
