package core

import "errors"

// Fatal pipeline errors. Everything else degrades in place.
var (
	// ErrSynthesisFailed means no report text could be produced.
	ErrSynthesisFailed = errors.New("report synthesis failed")
	// ErrStorageFailed means the finished report could not be persisted.
	ErrStorageFailed = errors.New("report storage failed")
)
