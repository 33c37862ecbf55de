package quota

import "errors"

var (
	// ErrQuotaUnavailable means the ledger could not be read or written.
	// Callers must deny the scan.
	ErrQuotaUnavailable = errors.New("quota store unavailable")
	// ErrReservationNotFound is returned for unknown reservation ids.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrUnknownPlan is returned for plan names outside the catalog.
	ErrUnknownPlan = errors.New("unknown plan")
)
