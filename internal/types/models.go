// internal/types/models.go
package types

import (
	"time"
)

// SessionState is a tag in the per-requester conversational state machine.
type SessionState string

const (
	StateStart                  SessionState = "start"
	StateAwaitingLocation       SessionState = "awaiting_location"
	StateAwaitingResourceChoice SessionState = "awaiting_resource_choice"
	StateAwaitingPayment        SessionState = "awaiting_payment"
	StateAwaitingContact        SessionState = "awaiting_contact"
	StateDone                   SessionState = "done"
	StateCancelled              SessionState = "cancelled"
)

// Terminal reports whether the state ends the conversational flow.
func (s SessionState) Terminal() bool {
	return s == StateDone || s == StateCancelled
}

// Session is the transient conversational state for one requester. It is
// owned exclusively by the session directory; all reads and mutations happen
// under the directory's per-identity scope.
type Session struct {
	Requester          RequesterID
	State              SessionState
	Region             string
	OfferedResources   map[ResourceID]string
	OfferedOrder       []ResourceID
	SelectedResourceID ResourceID
	PendingReference   Reference
	CreatedAt          time.Time
	LastActivityAt     time.Time
}

// EntitlementRecord is the durable per-requester record of an encrypted
// contact submission and remaining resource-access quota. Contact info is
// never stored or logged in plaintext.
type EntitlementRecord struct {
	Requester            RequesterID
	EncryptedContact     []byte
	LastRegion           string
	ResourceAccessCount  int
	LastResourceAccessAt time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// SettlementStatus is a ledger entry's settlement status.
type SettlementStatus string

const (
	StatusInitialized SettlementStatus = "initialized"
	StatusSettled     SettlementStatus = "settled"
	StatusFailed      SettlementStatus = "failed"
	// StatusPending is only ever returned by gateway verification, never
	// stored: a pending verification leaves the ledger untouched.
	StatusPending SettlementStatus = "pending"
)

// Terminal reports whether the status can no longer change.
func (s SettlementStatus) Terminal() bool {
	return s == StatusSettled || s == StatusFailed
}

// LedgerEntry is the durable record of one checkout attempt. Status moves
// Initialized -> Settled|Failed exactly once.
type LedgerEntry struct {
	Reference Reference
	Requester RequesterID
	Resource  ResourceID
	Amount    int64
	Status    SettlementStatus
	CreatedAt time.Time
	SettledAt time.Time
}

// PendingUnlock records a settlement that arrived with no live session to
// advance, to be honored on the requester's next interaction.
type PendingUnlock struct {
	Requester RequesterID
	Resource  ResourceID
	Reference Reference
	CreatedAt time.Time
}

// Resource is one catalog item offered to a requester.
type Resource struct {
	ID           ResourceID
	Name         string
	ThumbnailURL string
}

// EventKind tags an inbound conversational event.
type EventKind string

const (
	KindText        EventKind = "text"
	KindLocation    EventKind = "location"
	KindButtonPress EventKind = "buttonPress"
	KindCommand     EventKind = "command"
)

// InboundEvent is one validated event from the conversational transport.
// Only the payload fields matching Kind are set.
type InboundEvent struct {
	Requester RequesterID
	Kind      EventKind
	Text      string
	Command   string
	Button    string
	Latitude  float64
	Longitude float64
}

// Button is one inline choice offered to a requester.
type Button struct {
	Label string
	// Data is the callback payload, or a URL when IsURL is set.
	Data  string
	IsURL bool
}

// MediaItem is one photo in an outbound media group.
type MediaItem struct {
	URL     string
	Caption string
}
