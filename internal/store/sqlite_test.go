package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/madakixo/jayy-bot/internal/types"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	key := bytes.Repeat([]byte{0x42}, 32)
	c, err := NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func newTestStore(t *testing.T, opts Options) *SQLiteStore {
	t.Helper()
	if opts.QuotaMax == 0 {
		opts.QuotaMax = 3
	}
	if opts.PendingUnlockTTL == 0 {
		opts.PendingUnlockTTL = 24 * time.Hour
	}
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"), testCipher(t), opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertContactStoresOnlyCiphertext(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	plaintext := "Jane, 0801234567"

	if err := s.UpsertContact(ctx, "user1", plaintext, "Lagos"); err != nil {
		t.Fatal(err)
	}

	rec, err := s.GetEntitlement(ctx, "user1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.LastRegion != "Lagos" {
		t.Errorf("expected region Lagos, got %s", rec.LastRegion)
	}
	if len(rec.EncryptedContact) == 0 {
		t.Fatal("expected encrypted contact present")
	}
	if bytes.Contains(rec.EncryptedContact, []byte(plaintext)) {
		t.Error("stored contact contains plaintext")
	}

	// Only the decrypt path recovers the plaintext.
	recovered, err := testCipher(t).Open(rec.EncryptedContact)
	if err != nil {
		t.Fatal(err)
	}
	if recovered != plaintext {
		t.Errorf("expected %q, got %q", plaintext, recovered)
	}
}

func TestUpsertContactPreservesQuota(t *testing.T) {
	s := newTestStore(t, Options{Cooldown: 0})
	ctx := context.Background()

	if err := s.UpsertContact(ctx, "user1", "first", "Lagos"); err != nil {
		t.Fatal(err)
	}
	if err := s.GrantResourceAccess(ctx, "user1"); err != nil {
		t.Fatal(err)
	}

	// Resubmission must not reset the counter.
	if err := s.UpsertContact(ctx, "user1", "second", "Oyo"); err != nil {
		t.Fatal(err)
	}
	rec, err := s.GetEntitlement(ctx, "user1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ResourceAccessCount != 1 {
		t.Errorf("expected access count 1 after resubmission, got %d", rec.ResourceAccessCount)
	}
	if rec.LastRegion != "Oyo" {
		t.Errorf("expected region updated to Oyo, got %s", rec.LastRegion)
	}
}

func TestUpsertContactEmptyRegionKeepsStored(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	if err := s.UpsertContact(ctx, "user1", "first", "Lagos"); err != nil {
		t.Fatal(err)
	}
	// A replayed payment re-enters at the contact step with no resolved
	// location; the stored region must survive that resubmission.
	if err := s.UpsertContact(ctx, "user1", "second", ""); err != nil {
		t.Fatal(err)
	}

	rec, err := s.GetEntitlement(ctx, "user1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.LastRegion != "Lagos" {
		t.Errorf("expected region preserved as Lagos, got %q", rec.LastRegion)
	}

	recovered, err := testCipher(t).Open(rec.EncryptedContact)
	if err != nil {
		t.Fatal(err)
	}
	if recovered != "second" {
		t.Errorf("expected contact updated, got %q", recovered)
	}
}

func TestGrantResourceAccessConcurrent(t *testing.T) {
	s := newTestStore(t, Options{QuotaMax: 3, Cooldown: 0})
	ctx := context.Background()

	if err := s.UpsertContact(ctx, "user1", "contact", "Lagos"); err != nil {
		t.Fatal(err)
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.GrantResourceAccess(ctx, "user1")
		}()
	}
	wg.Wait()
	close(results)

	successes, quotaFails := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, types.ErrQuotaExceeded):
			quotaFails++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 3 {
		t.Errorf("expected exactly 3 successes, got %d", successes)
	}
	if quotaFails != callers-3 {
		t.Errorf("expected %d quota failures, got %d", callers-3, quotaFails)
	}

	rec, err := s.GetEntitlement(ctx, "user1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ResourceAccessCount != 3 {
		t.Errorf("expected count 3, got %d", rec.ResourceAccessCount)
	}
}

func TestGrantResourceAccessCooldown(t *testing.T) {
	s := newTestStore(t, Options{QuotaMax: 3, Cooldown: 5 * time.Minute})
	ctx := context.Background()

	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }

	if err := s.UpsertContact(ctx, "user1", "contact", "Lagos"); err != nil {
		t.Fatal(err)
	}
	if err := s.GrantResourceAccess(ctx, "user1"); err != nil {
		t.Fatal(err)
	}

	now = now.Add(time.Minute)
	if err := s.GrantResourceAccess(ctx, "user1"); !errors.Is(err, types.ErrCooldownActive) {
		t.Errorf("expected ErrCooldownActive, got %v", err)
	}

	now = now.Add(5 * time.Minute)
	if err := s.GrantResourceAccess(ctx, "user1"); err != nil {
		t.Errorf("expected grant after cooldown, got %v", err)
	}
}

func TestQuotaTakesPrecedenceOverCooldown(t *testing.T) {
	s := newTestStore(t, Options{QuotaMax: 3, Cooldown: 5 * time.Minute})
	ctx := context.Background()

	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }

	if err := s.UpsertContact(ctx, "user1", "contact", "Lagos"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := s.GrantResourceAccess(ctx, "user1"); err != nil {
			t.Fatal(err)
		}
		now = now.Add(10 * time.Minute)
	}

	// Within the cooldown window after the 3rd grant, both conditions hold;
	// quota wins.
	now = now.Add(-9 * time.Minute)
	if err := s.GrantResourceAccess(ctx, "user1"); !errors.Is(err, types.ErrQuotaExceeded) {
		t.Errorf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestGrantWithoutRecord(t *testing.T) {
	s := newTestStore(t, Options{})
	if err := s.GrantResourceAccess(context.Background(), "ghost"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCountEntitlements(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	for _, id := range []types.RequesterID{"a", "b", "c"} {
		if err := s.UpsertContact(ctx, id, "contact", "Lagos"); err != nil {
			t.Fatal(err)
		}
	}
	count, err := s.CountEntitlements(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("expected 3 entitlements, got %d", count)
	}
}

func TestSettleLedgerEntryIdempotent(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	entry := &types.LedgerEntry{
		Reference: "jayy_ref1",
		Requester: "user1",
		Resource:  "img1",
		Amount:    5000,
		CreatedAt: time.Now(),
	}
	if err := s.CreateLedgerEntry(ctx, entry); err != nil {
		t.Fatal(err)
	}

	if err := s.SettleLedgerEntry(ctx, "jayy_ref1", types.StatusSettled); err != nil {
		t.Fatal(err)
	}

	// Second settlement, even with a different status, is rejected and the
	// first result stands.
	if err := s.SettleLedgerEntry(ctx, "jayy_ref1", types.StatusFailed); !errors.Is(err, types.ErrAlreadyTerminal) {
		t.Errorf("expected ErrAlreadyTerminal, got %v", err)
	}

	got, err := s.GetLedgerEntry(ctx, "jayy_ref1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.StatusSettled {
		t.Errorf("expected status settled, got %s", got.Status)
	}
	if got.SettledAt.IsZero() {
		t.Error("expected settled_at set")
	}
}

func TestSettleUnknownReference(t *testing.T) {
	s := newTestStore(t, Options{})
	err := s.SettleLedgerEntry(context.Background(), "jayy_nope", types.StatusSettled)
	if !errors.Is(err, types.ErrReferenceNotFound) {
		t.Errorf("expected ErrReferenceNotFound, got %v", err)
	}
}

func TestPendingUnlockTakeConsumes(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	unlock := &types.PendingUnlock{
		Requester: "user1",
		Resource:  "img1",
		Reference: "jayy_ref1",
		CreatedAt: time.Now(),
	}
	if err := s.PutPendingUnlock(ctx, unlock); err != nil {
		t.Fatal(err)
	}

	got, err := s.TakePendingUnlock(ctx, "user1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Resource != "img1" || got.Reference != "jayy_ref1" {
		t.Errorf("unexpected unlock: %+v", got)
	}

	if _, err := s.TakePendingUnlock(ctx, "user1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound after consume, got %v", err)
	}
}

func TestPendingUnlockExpiry(t *testing.T) {
	s := newTestStore(t, Options{PendingUnlockTTL: 24 * time.Hour})
	ctx := context.Background()

	created := time.Now().Add(-25 * time.Hour)
	if err := s.PutPendingUnlock(ctx, &types.PendingUnlock{
		Requester: "user1",
		Resource:  "img1",
		Reference: "jayy_old",
		CreatedAt: created,
	}); err != nil {
		t.Fatal(err)
	}

	// Too stale to honor even before the sweep runs.
	if _, err := s.TakePendingUnlock(ctx, "user1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound for expired unlock, got %v", err)
	}

	if err := s.PutPendingUnlock(ctx, &types.PendingUnlock{
		Requester: "user2",
		Resource:  "img2",
		Reference: "jayy_older",
		CreatedAt: created,
	}); err != nil {
		t.Fatal(err)
	}
	removed, err := s.ExpirePendingUnlocks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("expected 1 expired unlock removed, got %d", removed)
	}
}
