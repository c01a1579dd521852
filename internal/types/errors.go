// internal/types/errors.go
package types

import (
	"errors"
)

// Sentinel errors matched with errors.Is across the engine, stores, and
// adapters.
var (
	// ErrQuotaExceeded means the requester has used all resource accesses.
	ErrQuotaExceeded = errors.New("resource access quota exceeded")

	// ErrCooldownActive means the previous access is too recent.
	ErrCooldownActive = errors.New("resource access cooldown active")

	// ErrReferenceNotFound means a settlement referenced no known checkout.
	ErrReferenceNotFound = errors.New("payment reference not found")

	// ErrAlreadyTerminal means a ledger entry was already settled or failed.
	ErrAlreadyTerminal = errors.New("ledger entry already terminal")

	// ErrGatewayUnavailable means the payment provider could not be reached.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrNotFound is a generic missing-record error.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable means an external adapter is down.
	ErrUnavailable = errors.New("adapter unavailable")
)
