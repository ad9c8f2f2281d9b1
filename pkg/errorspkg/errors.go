// Package errorspkg provides common app errors.
package errorspkg

import "errors"

var (
	// ErrInternal indicates internal server error.
	ErrInternal = errors.New("internal")
	// ErrStoreUnavailable indicates that the underlying transactional store failed.
	// No partial effects of the operation are visible.
	ErrStoreUnavailable = errors.New("store unavailable")
)
