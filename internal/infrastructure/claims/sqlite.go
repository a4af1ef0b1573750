package claims

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	domain "github.com/proffesor-for-testing/agentic-qe-sub013/internal/domain/claims"
)

// SQLiteClaimStore is a durable ClaimStore backed by a SQLite file. The
// full claim record lives in a JSON payload column; the columns used by
// queries are projected out and kept in sync on every write.
type SQLiteClaimStore struct {
	db *sql.DB
}

// NewSQLiteClaimStore opens (creating if needed) a SQLite-backed store at
// the given path. ":memory:" yields a private volatile database.
func NewSQLiteClaimStore(path string) (*SQLiteClaimStore, error) {
	if path == "" {
		path = ".data/claims.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Concurrent CAS updates serialize on a single connection; SQLite
	// handles one writer at a time anyway.
	db.SetMaxOpenConns(1)

	store := &SQLiteClaimStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteClaimStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS claims (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			domain TEXT NOT NULL,
			priority_weight INTEGER NOT NULL,
			claimant_id TEXT,
			last_activity_ms INTEGER NOT NULL DEFAULT 0,
			ttl_ms INTEGER NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL,
			version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status);
		CREATE INDEX IF NOT EXISTS idx_claims_domain ON claims(domain);
		CREATE INDEX IF NOT EXISTS idx_claims_claimant ON claims(claimant_id);
		CREATE INDEX IF NOT EXISTS idx_claims_activity ON claims(last_activity_ms);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func claimColumns(c *domain.Claim) (claimantID sql.NullString, lastActivityMs, ttlMs, createdAtMs int64) {
	if c.Claimant != nil {
		claimantID = sql.NullString{String: c.Claimant.ID, Valid: true}
	}
	if !c.LastActivityAt.IsZero() {
		lastActivityMs = c.LastActivityAt.UnixMilli()
	}
	return claimantID, lastActivityMs, c.TTL.Milliseconds(), c.CreatedAt.UnixMilli()
}

// Create validates the spec and inserts a new available claim.
func (s *SQLiteClaimStore) Create(ctx context.Context, spec ClaimSpec, now time.Time) (*domain.Claim, error) {
	claim, err := newClaim(spec, now)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(claim)
	if err != nil {
		return nil, fmt.Errorf("marshal claim: %w", err)
	}

	claimantID, lastActivityMs, ttlMs, createdAtMs := claimColumns(claim)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO claims (id, status, domain, priority_weight, claimant_id,
			last_activity_ms, ttl_ms, created_at_ms, version, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		claim.ID, string(claim.Status), claim.Domain, claim.Priority.Weight(),
		claimantID, lastActivityMs, ttlMs, createdAtMs, claim.Version, payload)
	if err != nil {
		return nil, fmt.Errorf("insert claim: %w", err)
	}
	return claim, nil
}

// Get returns the claim with the given id.
func (s *SQLiteClaimStore) Get(ctx context.Context, id string) (*domain.Claim, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM claims WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query claim: %w", err)
	}

	var claim domain.Claim
	if err := json.Unmarshal(payload, &claim); err != nil {
		return nil, fmt.Errorf("unmarshal claim: %w", err)
	}
	return &claim, nil
}

// Update applies a mutation under compare-and-set. The UPDATE is guarded
// by the expected version, so a concurrent writer that commits first makes
// this one fail with domain.ErrConflict and roll back.
func (s *SQLiteClaimStore) Update(ctx context.Context, id string, expectedVersion int, mutate Mutation) (*domain.Claim, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	var payload []byte
	var version int
	err = tx.QueryRowContext(ctx, `SELECT payload, version FROM claims WHERE id = ?`, id).Scan(&payload, &version)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query claim: %w", err)
	}
	if version != expectedVersion {
		return nil, fmt.Errorf("%w: claim %s at version %d, expected %d",
			domain.ErrConflict, id, version, expectedVersion)
	}

	var claim domain.Claim
	if err := json.Unmarshal(payload, &claim); err != nil {
		return nil, fmt.Errorf("unmarshal claim: %w", err)
	}
	if err := mutate(&claim); err != nil {
		return nil, err
	}
	claim.Version = expectedVersion + 1

	next, err := json.Marshal(&claim)
	if err != nil {
		return nil, fmt.Errorf("marshal claim: %w", err)
	}

	claimantID, lastActivityMs, ttlMs, _ := claimColumns(&claim)
	res, err := tx.ExecContext(ctx, `
		UPDATE claims
		SET status = ?, domain = ?, priority_weight = ?, claimant_id = ?,
			last_activity_ms = ?, ttl_ms = ?, version = ?, payload = ?
		WHERE id = ? AND version = ?`,
		string(claim.Status), claim.Domain, claim.Priority.Weight(), claimantID,
		lastActivityMs, ttlMs, claim.Version, next, id, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("update claim: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: claim %s moved past version %d",
			domain.ErrConflict, id, expectedVersion)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return &claim, nil
}

// List returns claims matching the filter, priority descending then
// CreatedAt ascending.
func (s *SQLiteClaimStore) List(ctx context.Context, filter Filter) ([]*domain.Claim, error) {
	var where []string
	var args []any

	if len(filter.Status) > 0 {
		marks := make([]string, len(filter.Status))
		for i, st := range filter.Status {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.Domain != "" {
		where = append(where, "domain = ?")
		args = append(args, filter.Domain)
	}
	if filter.Priority != "" {
		where = append(where, "priority_weight = ?")
		args = append(args, filter.Priority.Weight())
	}
	if filter.Claimant != "" {
		where = append(where, "claimant_id = ?")
		args = append(args, filter.Claimant)
	}

	query := "SELECT payload FROM claims"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY priority_weight DESC, created_at_ms ASC"

	return s.queryClaims(ctx, query, args...)
}

// FindStale returns owned claims whose inactivity lease lapsed before now.
func (s *SQLiteClaimStore) FindStale(ctx context.Context, now time.Time) ([]*domain.Claim, error) {
	return s.queryClaims(ctx, `
		SELECT payload FROM claims
		WHERE status IN (?, ?, ?) AND ttl_ms > 0 AND (? - last_activity_ms) > ttl_ms
		ORDER BY priority_weight DESC, created_at_ms ASC`,
		string(domain.StatusClaimed), string(domain.StatusInProgress), string(domain.StatusBlocked),
		now.UnixMilli())
}

func (s *SQLiteClaimStore) queryClaims(ctx context.Context, query string, args ...any) ([]*domain.Claim, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.Claim, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		var claim domain.Claim
		if err := json.Unmarshal(payload, &claim); err != nil {
			return nil, fmt.Errorf("unmarshal claim: %w", err)
		}
		result = append(result, &claim)
	}
	return result, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteClaimStore) Close() error { return s.db.Close() }
