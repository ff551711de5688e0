package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"clipsmith/internal/config"
	"clipsmith/internal/services"
)

// Store manages queue persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the queue database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "queue.db"))
}

// OpenPath opens a queue database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
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

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Enqueue inserts a pending job on the named queue. It returns immediately;
// the only failure mode is an unreachable backend, reported as
// services.ErrUnavailable.
func (s *Store) Enqueue(ctx context.Context, queueName string, tenantID, clipID, payload string, policy RetryPolicy) (*Job, error) {
	if queueName == "" {
		return nil, errors.New("queue name required")
	}
	if tenantID == "" {
		return nil, errors.New("tenant id required")
	}
	if policy.MaxAttempts <= 0 {
		return nil, errors.New("retry policy requires positive max attempts")
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            queue, tenant_id, clip_id, payload, state, attempts,
            max_attempts, backoff_base_ms, run_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?)`,
		queueName,
		tenantID,
		clipID,
		payload,
		StatePending,
		policy.MaxAttempts,
		policy.BackoffBase.Milliseconds(),
		timestamp,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, "queue", "enqueue "+queueName, "insert job", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// Claim atomically hands the oldest runnable job on the named queue to a
// worker, bumping the attempt counter and taking a lease. Returns nil when no
// job is runnable. Counting the attempt at claim time makes delivery
// at-least-once: a worker crash loses the lease, not the count.
func (s *Store) Claim(ctx context.Context, queueName string) (*Job, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, "queue", "claim "+queueName, "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(
		ctx,
		`SELECT id FROM jobs
         WHERE queue = ? AND state = ? AND run_at <= ?
         ORDER BY id LIMIT 1`,
		queueName, StatePending, timestamp,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select runnable job: %w", err)
	}

	res, err := tx.ExecContext(
		ctx,
		`UPDATE jobs
         SET state = ?, attempts = attempts + 1, leased_at = ?, updated_at = ?
         WHERE id = ? AND state = ?`,
		StateActive, timestamp, timestamp, id, StatePending,
	)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	return s.GetByID(ctx, id)
}

// Complete acknowledges a delivered job, removing it from the pending set.
func (s *Store) Complete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET state = ?, leased_at = NULL, updated_at = ? WHERE id = ?`,
		StateCompleted,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail records a handler failure. If the job has delivery budget left it is
// re-scheduled after the policy backoff delay; otherwise it moves to the
// terminal failed state. Returns true when the failure was terminal.
func (s *Store) Fail(ctx context.Context, job *Job, cause string) (bool, error) {
	if job == nil {
		return false, errors.New("job is nil")
	}
	if job.Exhausted() {
		return true, s.failTerminal(ctx, job.ID, cause)
	}

	now := time.Now().UTC()
	runAt := now.Add(job.Policy().Delay(job.Attempts))
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET state = ?, run_at = ?, leased_at = NULL, last_error = ?, updated_at = ?
         WHERE id = ?`,
		StatePending,
		runAt.Format(time.RFC3339Nano),
		nullableString(cause),
		now.Format(time.RFC3339Nano),
		job.ID,
	)
	if err != nil {
		return false, fmt.Errorf("reschedule job: %w", err)
	}
	return false, nil
}

// FailTerminal moves a job straight to the terminal failed state regardless of
// remaining delivery budget. Used for fatal (non-retryable) handler errors.
func (s *Store) FailTerminal(ctx context.Context, job *Job, cause string) error {
	if job == nil {
		return errors.New("job is nil")
	}
	return s.failTerminal(ctx, job.ID, cause)
}

func (s *Store) failTerminal(ctx context.Context, id int64, cause string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET state = ?, leased_at = NULL, last_error = ?, updated_at = ?
         WHERE id = ?`,
		StateFailed,
		nullableString(cause),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// ReclaimStale returns active jobs whose lease expired before cutoff to the
// pending set so another worker can pick them up.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET state = ?, leased_at = NULL, updated_at = ?
         WHERE state = ? AND leased_at IS NOT NULL AND leased_at < ?`,
		StatePending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StateActive,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// GetByID fetches a job by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// JobsByClip returns every queue entry recorded for a clip, oldest first.
func (s *Store) JobsByClip(ctx context.Context, clipID string) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE clip_id = ? ORDER BY id`, clipID)
	if err != nil {
		return nil, fmt.Errorf("query by clip: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// List returns jobs filtered by tenant (optional) and state set (or all jobs
// when no state is provided), oldest first.
func (s *Store) List(ctx context.Context, tenantID string, states ...State) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var clauses []string
	var args []any
	if tenantID != "" {
		clauses = append(clauses, "tenant_id = ?")
		args = append(args, tenantID)
	}
	if len(states) > 0 {
		clauses = append(clauses, "state IN ("+makePlaceholders(len(states))+")")
		for _, state := range states {
			args = append(args, state)
		}
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Stats returns a count of jobs grouped by state.
func (s *Store) Stats(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int)
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for state, count := range stats {
		health.Total += count
		switch state {
		case StatePending:
			health.Pending += count
		case StateActive:
			health.Active += count
		case StateCompleted:
			health.Completed += count
		case StateFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// RetryFailed moves failed jobs back to pending with a fresh delivery budget.
// With no ids, all failed jobs are retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs
             SET state = ?, attempts = 0, run_at = ?, last_error = NULL, updated_at = ?
             WHERE state = ?`,
			StatePending, now, now, StateFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	args := make([]any, 0, len(ids)+3)
	args = append(args, StatePending, now, now)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE jobs
        SET state = ?, attempts = 0, run_at = ?, last_error = NULL, updated_at = ?
        WHERE id IN (` + makePlaceholders(len(ids)) + `) AND state = '` + string(StateFailed) + `'`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// ClearCompleted removes only completed jobs.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE state = ?`, StateCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed jobs.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE state = ?`, StateFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all jobs.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

const jobColumns = "id, queue, tenant_id, clip_id, payload, state, attempts, max_attempts, backoff_base_ms, run_at, leased_at, last_error, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id          int64
		queueName   string
		tenantID    string
		clipID      string
		payload     string
		stateStr    string
		attempts    int
		maxAttempts int
		backoffMS   int
		runAtRaw    sql.NullString
		leasedRaw   sql.NullString
		lastError   sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&queueName,
		&tenantID,
		&clipID,
		&payload,
		&stateStr,
		&attempts,
		&maxAttempts,
		&backoffMS,
		&runAtRaw,
		&leasedRaw,
		&lastError,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:            id,
		Queue:         queueName,
		TenantID:      tenantID,
		ClipID:        clipID,
		Payload:       payload,
		State:         State(stateStr),
		Attempts:      attempts,
		MaxAttempts:   maxAttempts,
		BackoffBaseMS: backoffMS,
		LastError:     lastError.String,
	}

	if runAt, err := parseTimeString(runAtRaw.String); err == nil {
		job.RunAt = runAt
	}
	if leasedRaw.Valid {
		if leased, err := parseTimeString(leasedRaw.String); err == nil {
			job.LeasedAt = &leased
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
