// Package bridge reconciles payment-settlement events with live
// conversational sessions. Settlements arrive from a webhook (or verify
// polling) with no handle into the requester's conversation; the bridge
// finalizes the ledger and either advances the live session or records a
// durable pending unlock for the requester's next interaction.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/madakixo/jayy-bot/internal/directory"
	"github.com/madakixo/jayy-bot/internal/store"
	"github.com/madakixo/jayy-bot/internal/types"
)

const (
	msgPaymentConfirmed = "Payment confirmed!\n\nPlease reply with your name and phone number so your connection can reach you. This will be kept private and encrypted."
	msgPaymentFailed    = "Your payment did not go through. Type /start to try again."
)

// Bridge consumes settlement signals. At-least-once, duplicated, and
// out-of-order delivery is expected; everything here is idempotent.
type Bridge struct {
	store     store.Store
	dir       *directory.Directory
	gateway   types.PaymentGateway
	transport types.Transport
}

// New creates a Bridge.
func New(st store.Store, dir *directory.Directory, gateway types.PaymentGateway, transport types.Transport) *Bridge {
	return &Bridge{store: st, dir: dir, gateway: gateway, transport: transport}
}

// ReportSettlement processes one settlement signal. Unknown references are
// discarded (forged or foreign), duplicate signals for a terminal entry are
// discarded, and only the first signal transitions the ledger and the
// session. The session transition runs under the directory's per-identity
// scope, so it cannot interleave with user-driven work for the same
// requester.
func (b *Bridge) ReportSettlement(ctx context.Context, ref types.Reference, status types.SettlementStatus) error {
	if !status.Terminal() {
		return nil
	}

	entry, err := b.store.GetLedgerEntry(ctx, ref)
	if errors.Is(err, types.ErrNotFound) {
		slog.Warn("discarding settlement for unknown reference", "reference", ref)
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up ledger entry: %w", err)
	}
	if entry.Status.Terminal() {
		slog.Info("discarding duplicate settlement", "reference", ref, "status", entry.Status)
		return nil
	}

	if err := b.store.SettleLedgerEntry(ctx, ref, status); err != nil {
		if errors.Is(err, types.ErrAlreadyTerminal) {
			// Lost a race with a concurrent duplicate delivery; the winner
			// already advanced the session.
			return nil
		}
		return fmt.Errorf("settle ledger entry: %w", err)
	}

	var unlockErr error
	b.dir.With(entry.Requester, func(s *types.Session) *types.Session {
		if s != nil && s.State == types.StateAwaitingPayment && s.PendingReference == ref {
			return b.advance(ctx, s, status)
		}
		// No matching live session: the session expired, the process
		// restarted, or the user navigated away. A settled payment must
		// still be honored on the next interaction.
		if status == types.StatusSettled {
			unlockErr = b.store.PutPendingUnlock(ctx, &types.PendingUnlock{
				Requester: entry.Requester,
				Resource:  entry.Resource,
				Reference: ref,
				CreatedAt: time.Now(),
			})
		}
		return s
	})
	if unlockErr != nil {
		return fmt.Errorf("record pending unlock: %w", unlockErr)
	}
	return nil
}

func (b *Bridge) advance(ctx context.Context, s *types.Session, status types.SettlementStatus) *types.Session {
	if status == types.StatusSettled {
		s.State = types.StateAwaitingContact
		s.PendingReference = ""
		if err := b.transport.SendText(ctx, s.Requester, msgPaymentConfirmed); err != nil {
			slog.Error("notify payment confirmed failed", "requester", s.Requester, "error", err)
		}
		return s
	}
	if err := b.transport.SendText(ctx, s.Requester, msgPaymentFailed); err != nil {
		slog.Error("notify payment failed failed", "requester", s.Requester, "error", err)
	}
	return nil
}

// PollPending verifies the pending reference of every session sitting in
// AwaitingPayment, as a fallback for dropped webhook deliveries. Terminal
// results are fed through ReportSettlement, so polling and webhooks share
// one idempotent path.
func (b *Bridge) PollPending(ctx context.Context) {
	for _, s := range b.dir.Snapshot() {
		if s.State != types.StateAwaitingPayment || s.PendingReference == "" {
			continue
		}
		status, err := b.gateway.Verify(ctx, s.PendingReference)
		if err != nil {
			slog.Warn("verify poll failed", "reference", s.PendingReference, "error", err)
			continue
		}
		if !status.Terminal() {
			continue
		}
		if err := b.ReportSettlement(ctx, s.PendingReference, status); err != nil {
			slog.Error("poll settlement failed", "reference", s.PendingReference, "error", err)
		}
	}
}
