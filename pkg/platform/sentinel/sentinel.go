package sentinel

import "errors"

// Sentinel errors for ledger infrastructure facts. Ledger backends and stores
// return these (optionally wrapped) so services can translate them into
// domain errors.
//
// - ErrNotFound: key is absent from the ledger
// - ErrVersionConflict: a read or expected version no longer matches committed state
// - ErrInvalidState: stored record cannot be decoded into its domain type
// - ErrUnavailable: backend temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrInvalidState    = errors.New("invalid state")
	ErrUnavailable     = errors.New("unavailable")
)
