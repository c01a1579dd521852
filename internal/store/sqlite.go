package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/madakixo/jayy-bot/internal/types"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	cipher *Cipher
	opts   Options

	now func() time.Time
}

// NewSQLite creates a SQLite-backed store at dbPath, sealing contact info
// with the given cipher.
func NewSQLite(dbPath string, cipher *Cipher, opts Options) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency. The _pragma form
	// is applied to every pooled connection, not just the first.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, cipher: cipher, opts: opts, now: time.Now}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS entitlements (
		requester_id TEXT PRIMARY KEY,
		encrypted_contact BLOB NOT NULL,
		last_region TEXT NOT NULL DEFAULT '',
		resource_access_count INTEGER NOT NULL DEFAULT 0,
		last_resource_access_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger (
		reference TEXT PRIMARY KEY,
		requester_id TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		settled_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_requester ON ledger(requester_id);

	CREATE TABLE IF NOT EXISTS pending_unlocks (
		requester_id TEXT PRIMARY KEY,
		resource_id TEXT NOT NULL,
		reference TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertContact seals the contact info and inserts or updates the record.
// Quota fields are deliberately absent from the update list so that a
// resubmission never resets them. An empty region keeps the stored one, since
// a replayed payment flow re-enters at the contact step without resolving a
// location.
func (s *SQLiteStore) UpsertContact(ctx context.Context, requester types.RequesterID, plaintextContact, region string) error {
	sealed, err := s.cipher.Seal(plaintextContact)
	if err != nil {
		return fmt.Errorf("seal contact: %w", err)
	}

	now := s.now().Unix()
	query := `
	INSERT INTO entitlements (requester_id, encrypted_contact, last_region, resource_access_count, created_at, updated_at)
	VALUES (?, ?, ?, 0, ?, ?)
	ON CONFLICT(requester_id) DO UPDATE SET
		encrypted_contact = excluded.encrypted_contact,
		last_region = CASE WHEN excluded.last_region = ''
			THEN entitlements.last_region ELSE excluded.last_region END,
		updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, string(requester), sealed, region, now, now); err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}
	return nil
}

// GetEntitlement retrieves a requester's entitlement record.
func (s *SQLiteStore) GetEntitlement(ctx context.Context, requester types.RequesterID) (*types.EntitlementRecord, error) {
	query := `
		SELECT requester_id, encrypted_contact, last_region,
		       resource_access_count, last_resource_access_at, created_at, updated_at
		FROM entitlements WHERE requester_id = ?`

	row := s.db.QueryRowContext(ctx, query, string(requester))

	var rec types.EntitlementRecord
	var requesterID string
	var lastAccess sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&requesterID, &rec.EncryptedContact, &rec.LastRegion,
		&rec.ResourceAccessCount, &lastAccess, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan entitlement row: %w", err)
	}

	rec.Requester = types.RequesterID(requesterID)
	if lastAccess.Valid {
		rec.LastResourceAccessAt = time.Unix(lastAccess.Int64, 0)
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)

	return &rec, nil
}

// GrantResourceAccess performs the quota check and increment as one
// conditional UPDATE. The WHERE clause is the check; a zero row count means
// the check failed, and a follow-up read classifies which condition held.
// The database enforces atomicity, so the grant stays correct even across a
// process restart between check and write.
func (s *SQLiteStore) GrantResourceAccess(ctx context.Context, requester types.RequesterID) error {
	now := s.now()
	earliest := now.Add(-s.opts.Cooldown).Unix()

	query := `
	UPDATE entitlements SET
		resource_access_count = resource_access_count + 1,
		last_resource_access_at = ?,
		updated_at = ?
	WHERE requester_id = ?
	  AND resource_access_count < ?
	  AND (last_resource_access_at IS NULL OR last_resource_access_at <= ?)`

	res, err := s.db.ExecContext(ctx, query,
		now.Unix(), now.Unix(), string(requester), s.opts.QuotaMax, earliest)
	if err != nil {
		return fmt.Errorf("grant resource access: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("grant rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	rec, err := s.GetEntitlement(ctx, requester)
	if err != nil {
		return err
	}
	// Quota takes precedence when both conditions hold.
	if rec.ResourceAccessCount >= s.opts.QuotaMax {
		return types.ErrQuotaExceeded
	}
	return types.ErrCooldownActive
}

// CountEntitlements returns the number of entitlement records.
func (s *SQLiteStore) CountEntitlements(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entitlements`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count entitlements: %w", err)
	}
	return count, nil
}

// CreateLedgerEntry records a freshly issued checkout.
func (s *SQLiteStore) CreateLedgerEntry(ctx context.Context, entry *types.LedgerEntry) error {
	query := `
	INSERT INTO ledger (reference, requester_id, resource_id, amount, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		string(entry.Reference), string(entry.Requester), string(entry.Resource),
		entry.Amount, string(types.StatusInitialized), entry.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create ledger entry: %w", err)
	}
	return nil
}

// GetLedgerEntry retrieves a ledger entry by reference.
func (s *SQLiteStore) GetLedgerEntry(ctx context.Context, ref types.Reference) (*types.LedgerEntry, error) {
	query := `
		SELECT reference, requester_id, resource_id, amount, status, created_at, settled_at
		FROM ledger WHERE reference = ?`

	row := s.db.QueryRowContext(ctx, query, string(ref))

	var entry types.LedgerEntry
	var reference, requesterID, resourceID, status string
	var createdAt int64
	var settledAt sql.NullInt64

	err := row.Scan(&reference, &requesterID, &resourceID, &entry.Amount, &status, &createdAt, &settledAt)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ledger row: %w", err)
	}

	entry.Reference = types.Reference(reference)
	entry.Requester = types.RequesterID(requesterID)
	entry.Resource = types.ResourceID(resourceID)
	entry.Status = types.SettlementStatus(status)
	entry.CreatedAt = time.Unix(createdAt, 0)
	if settledAt.Valid {
		entry.SettledAt = time.Unix(settledAt.Int64, 0)
	}
	return &entry, nil
}

// SettleLedgerEntry finalizes an entry exactly once. The status guard in the
// WHERE clause makes duplicate settlement a no-op at the database level.
func (s *SQLiteStore) SettleLedgerEntry(ctx context.Context, ref types.Reference, status types.SettlementStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("settle with non-terminal status %q", status)
	}

	query := `UPDATE ledger SET status = ?, settled_at = ? WHERE reference = ? AND status = ?`
	res, err := s.db.ExecContext(ctx, query,
		string(status), s.now().Unix(), string(ref), string(types.StatusInitialized))
	if err != nil {
		return fmt.Errorf("settle ledger entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("settle rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := s.GetLedgerEntry(ctx, ref); err != nil {
		if err == types.ErrNotFound {
			return types.ErrReferenceNotFound
		}
		return err
	}
	return types.ErrAlreadyTerminal
}

// PutPendingUnlock records a settlement with no live session. A later
// settlement for the same requester replaces the marker; only the most
// recent unlock is honored.
func (s *SQLiteStore) PutPendingUnlock(ctx context.Context, unlock *types.PendingUnlock) error {
	query := `
	INSERT INTO pending_unlocks (requester_id, resource_id, reference, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(requester_id) DO UPDATE SET
		resource_id = excluded.resource_id,
		reference = excluded.reference,
		created_at = excluded.created_at`

	_, err := s.db.ExecContext(ctx, query,
		string(unlock.Requester), string(unlock.Resource), string(unlock.Reference),
		unlock.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("put pending unlock: %w", err)
	}
	return nil
}

// TakePendingUnlock consumes the requester's pending unlock if it has not
// expired. Consumption happens before replay so a crash mid-replay cannot
// honor the same payment twice.
func (s *SQLiteStore) TakePendingUnlock(ctx context.Context, requester types.RequesterID) (*types.PendingUnlock, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin take unlock: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT requester_id, resource_id, reference, created_at FROM pending_unlocks WHERE requester_id = ?`,
		string(requester))

	var requesterID, resourceID, reference string
	var createdAt int64
	err = row.Scan(&requesterID, &resourceID, &reference, &createdAt)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan pending unlock: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_unlocks WHERE requester_id = ?`, string(requesterID)); err != nil {
		return nil, fmt.Errorf("delete pending unlock: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit take unlock: %w", err)
	}

	unlock := &types.PendingUnlock{
		Requester: types.RequesterID(requesterID),
		Resource:  types.ResourceID(resourceID),
		Reference: types.Reference(reference),
		CreatedAt: time.Unix(createdAt, 0),
	}
	if s.now().Sub(unlock.CreatedAt) > s.opts.PendingUnlockTTL {
		// Too stale to honor. It is already consumed, which is the point:
		// expired unlocks are not replayed.
		return nil, types.ErrNotFound
	}
	return unlock, nil
}

// ExpirePendingUnlocks removes unlocks older than the configured horizon.
func (s *SQLiteStore) ExpirePendingUnlocks(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.opts.PendingUnlockTTL).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_unlocks WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire pending unlocks: %w", err)
	}
	return res.RowsAffected()
}
