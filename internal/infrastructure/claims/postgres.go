package claims

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	domain "github.com/proffesor-for-testing/agentic-qe-sub013/internal/domain/claims"
)

// PostgresConfig holds PostgreSQL connection settings. Empty fields fall
// back to the conventional PG* environment variables.
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	User     string `json:"user" mapstructure:"user"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSL      bool   `json:"ssl" mapstructure:"ssl"`
}

func (c PostgresConfig) connString() string {
	host := c.Host
	if host == "" {
		host = getEnvOrDefault("PGHOST", "localhost")
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	user := c.User
	if user == "" {
		user = getEnvOrDefault("PGUSER", "postgres")
	}
	password := c.Password
	if password == "" {
		password = os.Getenv("PGPASSWORD")
	}
	database := c.Database
	if database == "" {
		database = os.Getenv("PGDATABASE")
	}
	sslMode := "disable"
	if c.SSL {
		sslMode = "require"
	}

	conn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		host, port, user, database, sslMode)
	if password != "" {
		conn += " password=" + password
	}
	return conn
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// PostgresClaimStore is a durable ClaimStore backed by PostgreSQL, for
// deployments where several coordinator-adjacent processes share one
// database. Same row shape as the SQLite backend.
type PostgresClaimStore struct {
	db *sql.DB
}

// NewPostgresClaimStore connects to PostgreSQL and prepares the schema.
func NewPostgresClaimStore(ctx context.Context, config PostgresConfig) (*PostgresClaimStore, error) {
	db, err := sql.Open("postgres", config.connString())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &PostgresClaimStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresClaimStore) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS claims (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			domain TEXT NOT NULL,
			priority_weight INTEGER NOT NULL,
			claimant_id TEXT,
			last_activity_ms BIGINT NOT NULL DEFAULT 0,
			ttl_ms BIGINT NOT NULL DEFAULT 0,
			created_at_ms BIGINT NOT NULL,
			version INTEGER NOT NULL,
			payload JSONB NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status);
		CREATE INDEX IF NOT EXISTS idx_claims_domain ON claims(domain);
		CREATE INDEX IF NOT EXISTS idx_claims_claimant ON claims(claimant_id);
		CREATE INDEX IF NOT EXISTS idx_claims_activity ON claims(last_activity_ms);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Create validates the spec and inserts a new available claim.
func (s *PostgresClaimStore) Create(ctx context.Context, spec ClaimSpec, now time.Time) (*domain.Claim, error) {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		claim.ID, string(claim.Status), claim.Domain, claim.Priority.Weight(),
		claimantID, lastActivityMs, ttlMs, createdAtMs, claim.Version, payload)
	if err != nil {
		return nil, fmt.Errorf("insert claim: %w", err)
	}
	return claim, nil
}

// Get returns the claim with the given id.
func (s *PostgresClaimStore) Get(ctx context.Context, id string) (*domain.Claim, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM claims WHERE id = $1`, id).Scan(&payload)
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

// Update applies a mutation under compare-and-set, using a row lock for
// the read and a version guard on the write.
func (s *PostgresClaimStore) Update(ctx context.Context, id string, expectedVersion int, mutate Mutation) (*domain.Claim, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	var payload []byte
	var version int
	err = tx.QueryRowContext(ctx,
		`SELECT payload, version FROM claims WHERE id = $1 FOR UPDATE`, id).Scan(&payload, &version)
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
		SET status = $1, domain = $2, priority_weight = $3, claimant_id = $4,
			last_activity_ms = $5, ttl_ms = $6, version = $7, payload = $8
		WHERE id = $9 AND version = $10`,
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
func (s *PostgresClaimStore) List(ctx context.Context, filter Filter) ([]*domain.Claim, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Status) > 0 {
		marks := make([]string, len(filter.Status))
		for i, st := range filter.Status {
			marks[i] = arg(string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.Domain != "" {
		where = append(where, "domain = "+arg(filter.Domain))
	}
	if filter.Priority != "" {
		where = append(where, "priority_weight = "+arg(filter.Priority.Weight()))
	}
	if filter.Claimant != "" {
		where = append(where, "claimant_id = "+arg(filter.Claimant))
	}

	query := "SELECT payload FROM claims"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY priority_weight DESC, created_at_ms ASC"

	return s.queryClaims(ctx, query, args...)
}

// FindStale returns owned claims whose inactivity lease lapsed before now.
func (s *PostgresClaimStore) FindStale(ctx context.Context, now time.Time) ([]*domain.Claim, error) {
	return s.queryClaims(ctx, `
		SELECT payload FROM claims
		WHERE status IN ($1, $2, $3) AND ttl_ms > 0 AND ($4 - last_activity_ms) > ttl_ms
		ORDER BY priority_weight DESC, created_at_ms ASC`,
		string(domain.StatusClaimed), string(domain.StatusInProgress), string(domain.StatusBlocked),
		now.UnixMilli())
}

func (s *PostgresClaimStore) queryClaims(ctx context.Context, query string, args ...any) ([]*domain.Claim, error) {
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
func (s *PostgresClaimStore) Close() error { return s.db.Close() }
