package sentinel

import "errors"

// Sentinel errors for storage and infrastructure facts. Stores and queues return
// these (optionally wrapped) so services can translate them into domain errors.
//
// - ErrNotFound: record does not exist
// - ErrConflict: a unique key (fingerprint, verification reference) is taken
// - ErrInvalidState: a compare-and-set saw a different current status
// - ErrUnavailable: backing service is not configured or not reachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
