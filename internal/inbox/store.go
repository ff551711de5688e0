package inbox

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"clipsmith/internal/config"
	"clipsmith/internal/services"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Submission is a tenant's queued clip request awaiting admission. The clip
// id is assigned at push time so a submitter can follow its clip through the
// event stream before admission happens.
type Submission struct {
	ID        int64
	TenantID  string
	ClipID    string
	SourceURL string
	CreatedAt time.Time
}

// Store persists per-tenant submission FIFOs in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the inbox database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "inbox.db"))
}

// OpenPath opens an inbox database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Push appends a submission to the tenant's FIFO. The URL must parse as an
// absolute http or https URL; a bad one is rejected before anything is stored.
func (s *Store) Push(ctx context.Context, tenantID, sourceURL string) (*Submission, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, services.Wrap(services.ErrMalformed, "inbox", "push", "tenant id required", nil)
	}
	if err := ValidateSourceURL(sourceURL); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	clipID := uuid.NewString()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO submissions (tenant_id, clip_id, source_url, created_at) VALUES (?, ?, ?, ?)`,
		tenantID, clipID, sourceURL, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, "inbox", "push", "insert submission", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &Submission{ID: id, TenantID: tenantID, ClipID: clipID, SourceURL: sourceURL, CreatedAt: now}, nil
}

// PopOldest removes and returns the oldest submission for a tenant, or nil
// when the tenant's FIFO is empty.
func (s *Store) PopOldest(ctx context.Context, tenantID string) (*Submission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var sub Submission
	var createdRaw string
	err = tx.QueryRowContext(
		ctx,
		`SELECT id, tenant_id, clip_id, source_url, created_at FROM submissions
         WHERE tenant_id = ? ORDER BY id LIMIT 1`,
		tenantID,
	).Scan(&sub.ID, &sub.TenantID, &sub.ClipID, &sub.SourceURL, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select oldest submission: %w", err)
	}
	if created, parseErr := time.Parse(time.RFC3339Nano, createdRaw); parseErr == nil {
		sub.CreatedAt = created
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE id = ?`, sub.ID); err != nil {
		return nil, fmt.Errorf("delete submission: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit pop: %w", err)
	}
	return &sub, nil
}

// Restore reinserts a popped submission under its original id and clip id,
// so it returns to the head of the tenant's FIFO. Admission calls this when
// it fails to start the pipeline run for a submission it already popped.
func (s *Store) Restore(ctx context.Context, sub *Submission) error {
	if sub == nil {
		return nil
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO submissions (id, tenant_id, clip_id, source_url, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		sub.ID, sub.TenantID, sub.ClipID, sub.SourceURL, sub.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return services.Wrap(services.ErrUnavailable, "inbox", "restore", "reinsert submission", err)
	}
	return nil
}

// Tenants lists every tenant with at least one waiting submission.
func (s *Store) Tenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM submissions ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var tenant string
		if err := rows.Scan(&tenant); err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

// Len returns the number of waiting submissions for a tenant.
func (s *Store) Len(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM submissions WHERE tenant_id = ?`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return count, nil
}

// Depth returns the total number of waiting submissions across all tenants.
func (s *Store) Depth(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM submissions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return count, nil
}

// ValidateSourceURL rejects anything that is not an absolute http or https
// URL.
func ValidateSourceURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return services.Wrap(services.ErrMalformed, "inbox", "validate url", "source url required", nil)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return services.Wrap(services.ErrMalformed, "inbox", "validate url", "unparseable source url", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return services.Wrap(services.ErrMalformed, "inbox", "validate url", fmt.Sprintf("unsupported scheme %q", parsed.Scheme), nil)
	}
	if parsed.Host == "" {
		return services.Wrap(services.ErrMalformed, "inbox", "validate url", "source url missing host", nil)
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch version {
	case schemaVersion:
		return nil
	case 0:
		// Fresh database.
	default:
		return fmt.Errorf("%w: database has version %d, expected %d (delete the inbox database)",
			ErrSchemaMismatch, version, schemaVersion)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
