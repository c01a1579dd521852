// Package store persists entitlement records, the transaction ledger, and
// pending unlocks.
package store

import (
	"context"
	"time"

	"github.com/madakixo/jayy-bot/internal/types"
)

// Store is the durable state surface used by the engine and the bridge.
// Entitlement records and ledger entries survive process restart; live
// sessions do not and are kept elsewhere.
type Store interface {
	// UpsertContact seals the plaintext contact info and inserts or updates
	// the requester's entitlement record. Quota fields are preserved on
	// update; resubmitting contact info never resets quota. An empty region
	// preserves the stored last_region.
	UpsertContact(ctx context.Context, requester types.RequesterID, plaintextContact, region string) error

	// GetEntitlement returns the requester's entitlement record, or
	// types.ErrNotFound.
	GetEntitlement(ctx context.Context, requester types.RequesterID) (*types.EntitlementRecord, error)

	// GrantResourceAccess atomically checks quota and cooldown and
	// increments the access count. The check-and-increment is a single
	// conditional UPDATE so concurrent callers cannot double-grant.
	// Returns types.ErrQuotaExceeded or types.ErrCooldownActive; quota
	// takes precedence when both hold.
	GrantResourceAccess(ctx context.Context, requester types.RequesterID) error

	// CountEntitlements returns the number of entitlement records.
	CountEntitlements(ctx context.Context) (int64, error)

	// CreateLedgerEntry records a freshly issued checkout.
	CreateLedgerEntry(ctx context.Context, entry *types.LedgerEntry) error

	// GetLedgerEntry returns the entry for a reference, or types.ErrNotFound.
	GetLedgerEntry(ctx context.Context, ref types.Reference) (*types.LedgerEntry, error)

	// SettleLedgerEntry finalizes an Initialized entry exactly once.
	// Returns types.ErrReferenceNotFound for unknown references and
	// types.ErrAlreadyTerminal for duplicate settlement.
	SettleLedgerEntry(ctx context.Context, ref types.Reference, status types.SettlementStatus) error

	// PutPendingUnlock records a settlement that found no live session.
	PutPendingUnlock(ctx context.Context, unlock *types.PendingUnlock) error

	// TakePendingUnlock returns and consumes the requester's unexpired
	// pending unlock, or types.ErrNotFound.
	TakePendingUnlock(ctx context.Context, requester types.RequesterID) (*types.PendingUnlock, error)

	// ExpirePendingUnlocks deletes unlocks older than the configured
	// horizon and returns how many were removed.
	ExpirePendingUnlocks(ctx context.Context) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Options bounds quota, cooldown, and pending-unlock retention.
type Options struct {
	QuotaMax         int
	Cooldown         time.Duration
	PendingUnlockTTL time.Duration
}
