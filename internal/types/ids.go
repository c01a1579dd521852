// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

// RequesterID is the stable platform identity of a requester. It is the
// primary key across the session directory, the entitlement store, and the
// ledger's requester linkage.
type RequesterID string

// ResourceID identifies a catalog resource (an image file in the remote
// catalog).
type ResourceID string

// Reference is a payment checkout reference, unique per checkout attempt.
type Reference string

// NewReference mints a fresh checkout reference.
func NewReference() Reference {
	return Reference("jayy_" + uuid.New().String())
}
