package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/taskforge/orchestrator/internal/domain"
)

// SQLiteStore is the only Store implementation: a single file-backed SQL
// database (§6), following the WAL/busy_timeout/migrator pattern of
// jholhewres-goclaw's SQLiteBackend. mattn/go-sqlite3 is cgo-backed and
// a single *sql.DB connection writes serially; we cap the pool at one
// connection to avoid SQLITE_BUSY storms under concurrent Execute calls
// (§5 "Shared-resource policy" — the Store is the single shared
// synchronisation point).
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or attaches to a SQLite database file at path, applying
// the schema in schema.go. path may be ":memory:" for tests.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory %q: %w", dir, err)
			}
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared&_foreign_keys=ON"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func isUniqueViolation(err error, column string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") && strings.Contains(err.Error(), column)
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *domain.Job) (int64, error) {
	argsJSON, err := json.Marshal(job.Args)
	if err != nil {
		return 0, fmt.Errorf("marshal args: %w", err)
	}
	kwargsJSON, err := json.Marshal(job.Kwargs)
	if err != nil {
		return 0, fmt.Errorf("marshal kwargs: %w", err)
	}

	now := time.Now().UTC()
	var idempotencyKey any
	if job.IdempotencyKey != "" {
		idempotencyKey = job.IdempotencyKey
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (name, function_path, args_json, kwargs_json, job_type,
		                   max_retries, timeout_seconds, idempotency_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Name, job.FunctionRef, string(argsJSON), string(kwargsJSON), string(job.Kind),
		job.MaxRetries, job.TimeoutSeconds, idempotencyKey, now, now,
	)
	if err != nil {
		if isUniqueViolation(err, "jobs.name") {
			return 0, domain.ErrDuplicateName
		}
		if isUniqueViolation(err, "jobs.idempotency_key") {
			return 0, domain.ErrDuplicateIdempotencyKey
		}
		return 0, domain.NewStoreError("create job", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, domain.NewStoreError("create job: last insert id", err)
	}
	return id, nil
}

const jobColumns = `id, name, function_path, args_json, kwargs_json, job_type,
	max_retries, timeout_seconds, idempotency_key, created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (*domain.Job, error) {
	var j domain.Job
	var argsJSON, kwargsJSON string
	var kind string
	var idempotencyKey sql.NullString

	err := row.Scan(&j.ID, &j.Name, &j.FunctionRef, &argsJSON, &kwargsJSON, &kind,
		&j.MaxRetries, &j.TimeoutSeconds, &idempotencyKey, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, domain.NewStoreError("scan job", err)
	}
	j.Kind = domain.Kind(kind)
	j.IdempotencyKey = idempotencyKey.String
	if err := json.Unmarshal([]byte(argsJSON), &j.Args); err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	if err := json.Unmarshal([]byte(kwargsJSON), &j.Kwargs); err != nil {
		return nil, fmt.Errorf("unmarshal kwargs: %w", err)
	}
	return &j, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id int64) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (s *SQLiteStore) GetJobByName(ctx context.Context, name string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE name = ?`, name)
	return scanJob(row)
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, domain.NewStoreError("delete job", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) CreateExecution(ctx context.Context, jobID int64, attempt int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (job_id, status, attempt, started_at)
		VALUES (?, ?, ?, ?)`,
		jobID, domain.StatusPending, attempt, time.Now().UTC(),
	)
	if err != nil {
		return 0, domain.NewStoreError("create execution", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, domain.NewStoreError("create execution: last insert id", err)
	}
	return id, nil
}

func scanExecution(row interface{ Scan(...any) error }) (*domain.Execution, error) {
	var e domain.Execution
	var status string
	var completedAt sql.NullTime
	var duration sql.NullFloat64
	var result sql.NullString
	var errMsg, traceback sql.NullString

	err := row.Scan(&e.ID, &e.JobID, &status, &e.Attempt, &e.StartedAt,
		&completedAt, &duration, &result, &errMsg, &traceback)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrExecutionNotFound
		}
		return nil, domain.NewStoreError("scan execution", err)
	}
	e.Status = domain.Status(status)
	if completedAt.Valid {
		t := completedAt.Time
		e.CompletedAt = &t
	}
	if duration.Valid {
		d := duration.Float64
		e.DurationSeconds = &d
	}
	if result.Valid {
		e.Result = []byte(result.String)
	}
	e.ErrorMessage = errMsg.String
	e.Traceback = traceback.String
	return &e, nil
}

const executionColumns = `id, job_id, status, attempt, started_at, completed_at, duration_seconds, result_json, error_message, traceback`

func (s *SQLiteStore) UpdateExecution(ctx context.Context, exec *domain.Execution) (bool, error) {
	var result any
	if exec.Result != nil {
		result = string(exec.Result)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE executions
		SET status = ?, completed_at = ?, duration_seconds = ?, result_json = ?, error_message = ?, traceback = ?
		WHERE id = ?`,
		string(exec.Status), exec.CompletedAt, exec.DurationSeconds, result,
		nullIfEmpty(exec.ErrorMessage), nullIfEmpty(exec.Traceback), exec.ID,
	)
	if err != nil {
		return false, domain.NewStoreError("update execution", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *SQLiteStore) GetExecution(ctx context.Context, id int64) (*domain.Execution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	return scanExecution(row)
}

func (s *SQLiteStore) ListExecutions(ctx context.Context, filter domain.ExecutionFilter, limit int) ([]*domain.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE 1=1`
	var args []any
	if filter.JobID != 0 {
		query += ` AND job_id = ?`
		args = append(args, filter.JobID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStoreError("list executions", err)
	}
	defer rows.Close()

	var out []*domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FindSuccessByIdempotencyKey(ctx context.Context, key string) (*domain.Execution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+aliasColumns("e")+`
		FROM executions e
		JOIN jobs j ON j.id = e.job_id
		WHERE j.idempotency_key = ? AND e.status = ?
		ORDER BY e.completed_at DESC
		LIMIT 1`,
		key, string(domain.StatusSuccess),
	)
	exec, err := scanExecution(row)
	if errors.Is(err, domain.ErrExecutionNotFound) {
		return nil, nil
	}
	return exec, err
}

func aliasColumns(alias string) string {
	cols := strings.Split(executionColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func (s *SQLiteStore) CreateSchedule(ctx context.Context, sch *domain.Schedule) (int64, error) {
	if (sch.CronExpression == "") == (sch.RunAt == nil) {
		return 0, domain.ErrInvalidScheduleSpec
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (job_id, cron_expression, run_at, enabled, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sch.JobID, nullIfEmpty(sch.CronExpression), sch.RunAt, sch.Enabled, time.Now().UTC(),
	)
	if err != nil {
		return 0, domain.NewStoreError("create schedule", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, domain.NewStoreError("create schedule: last insert id", err)
	}
	return id, nil
}

const scheduleColumns = `id, job_id, cron_expression, run_at, enabled, last_fired_at, created_at`

func scanSchedule(row interface{ Scan(...any) error }) (*domain.Schedule, error) {
	var sch domain.Schedule
	var cron sql.NullString
	var runAt, lastFired sql.NullTime
	var enabled bool

	err := row.Scan(&sch.ID, &sch.JobID, &cron, &runAt, &enabled, &lastFired, &sch.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, domain.NewStoreError("scan schedule", err)
	}
	sch.CronExpression = cron.String
	sch.Enabled = enabled
	if runAt.Valid {
		t := runAt.Time
		sch.RunAt = &t
	}
	if lastFired.Valid {
		t := lastFired.Time
		sch.LastFiredAt = &t
	}
	return &sch, nil
}

func (s *SQLiteStore) GetSchedule(ctx context.Context, id int64) (*domain.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	return scanSchedule(row)
}

func (s *SQLiteStore) ListSchedules(ctx context.Context, filter domain.ScheduleFilter) ([]*domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE 1=1`
	var args []any
	if filter.JobID != 0 {
		query += ` AND job_id = ?`
		args = append(args, filter.JobID)
	}
	if filter.EnabledOnly {
		query += ` AND enabled = 1`
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStoreError("list schedules", err)
	}
	defer rows.Close()

	var out []*domain.Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sch)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteSchedule(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return false, domain.NewStoreError("delete schedule", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) MarkScheduleFired(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE schedules SET last_fired_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return domain.NewStoreError("mark schedule fired", err)
	}
	return nil
}

func (s *SQLiteStore) DisableSchedule(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE schedules SET enabled = 0 WHERE id = ?`, id)
	if err != nil {
		return domain.NewStoreError("disable schedule", err)
	}
	return nil
}

func (s *SQLiteStore) MarkRunningAsFailed(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE executions
		SET status = ?, completed_at = ?, error_message = ?
		WHERE status = ?`,
		string(domain.StatusFailed), now, "orphaned by restart", string(domain.StatusRunning),
	)
	if err != nil {
		return 0, domain.NewStoreError("mark running as failed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.NewStoreError("mark running as failed: rows affected", err)
	}
	return int(n), nil
}
