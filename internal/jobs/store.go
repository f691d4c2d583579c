package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"taskscribe/internal/config"
	"taskscribe/internal/services"
)

const itemColumns = `id, job_id, status, audio_path, stage_artifacts, warnings,
    extraction_mode, failure_reason, cancel_requested, created_at, updated_at, revision`

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the jobs database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "jobs.db")
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

// Path returns the jobs database location.
func (s *Store) Path() string {
	return s.path
}

// NewJobID returns a fresh external job identifier.
func NewJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewJob inserts a new queued job for an uploaded recording and assigns its
// immutable external identifier.
func (s *Store) NewJob(ctx context.Context, audioPath string) (*Job, error) {
	return s.NewJobWithID(ctx, NewJobID(), audioPath)
}

// NewJobWithID inserts a queued job under a caller-chosen identifier. The
// intake path stages the uploaded recording in the job's namespace first and
// inserts the row afterwards, so a queued job is never visible to the worker
// pool without its audio path.
func (s *Store) NewJobWithID(ctx context.Context, jobID, audioPath string) (*Job, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            job_id, status, audio_path, stage_artifacts, warnings,
            cancel_requested, created_at, updated_at, revision
        ) VALUES (?, ?, ?, '[]', '[]', 0, ?, ?, 1)`,
		jobID,
		StatusQueued,
		nullableString(audioPath),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a job by database identifier. Returns nil when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetByJobID fetches a job by its external identifier. Returns nil when absent.
func (s *Store) GetByJobID(ctx context.Context, jobID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM jobs WHERE job_id = ?`, strings.TrimSpace(jobID))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job by job_id: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing job. The write is guarded by the
// job's revision: a mismatch means another writer got there first and the
// caller must re-read before retrying (services.ErrConflict).
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}

	artifactsJSON, err := json.Marshal(job.StageArtifacts)
	if err != nil {
		return fmt.Errorf("marshal stage artifacts: %w", err)
	}
	warningsJSON, err := json.Marshal(job.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}

	updatedAt := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, audio_path = ?, stage_artifacts = ?, warnings = ?,
             extraction_mode = ?, failure_reason = ?, cancel_requested = ?,
             updated_at = ?, revision = revision + 1
         WHERE id = ? AND revision = ?`,
		job.Status,
		nullableString(job.AudioPath),
		string(artifactsJSON),
		string(warningsJSON),
		nullableString(job.ExtractionMode),
		nullableString(job.FailureReason),
		boolToInt(job.CancelRequested),
		updatedAt.Format(time.RFC3339Nano),
		job.ID,
		job.Revision,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrConflict, "", "update job",
			fmt.Sprintf("job %s changed since revision %d; re-read and retry", job.JobID, job.Revision), nil)
	}

	job.Revision++
	job.UpdatedAt = updatedAt
	return nil
}

// JobsByStatus returns jobs matching a status ordered by creation time.
func (s *Store) JobsByStatus(ctx context.Context, status Status) ([]*Job, error) {
	return s.List(ctx, status)
}

// List returns jobs filtered by status set (or all jobs when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var result []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

// RequestCancel sets the cooperative cancellation flag on a job. The
// coordinator honors it at the next stage boundary. Returns the updated job
// or services.ErrNotFound for an unknown identifier.
func (s *Store) RequestCancel(ctx context.Context, jobID string) (*Job, error) {
	for {
		job, err := s.GetByJobID(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, services.Wrap(services.ErrNotFound, "", "cancel job", fmt.Sprintf("job %s not found", jobID), nil)
		}
		if job.Status.IsTerminal() || job.CancelRequested {
			return job, nil
		}
		job.CancelRequested = true
		err = s.Update(ctx, job)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, services.ErrConflict) {
			return nil, err
		}
		// Lost the race against a stage transition; re-read and retry.
	}
}

// Health aggregates job counts by lifecycle state.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	var summary HealthSummary
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return summary, fmt.Errorf("health query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return summary, fmt.Errorf("scan health row: %w", err)
		}
		summary.Total += count
		switch status {
		case StatusQueued:
			summary.Queued += count
		case StatusCompleted:
			summary.Completed += count
		case StatusFailed:
			summary.Failed += count
		case StatusCancelled:
			summary.Cancelled += count
		default:
			summary.Processing += count
		}
	}
	return summary, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job             Job
		audioPath       sql.NullString
		artifactsJSON   string
		warningsJSON    string
		extractionMode  sql.NullString
		failureReason   sql.NullString
		cancelRequested int
		createdAt       string
		updatedAt       string
	)

	err := scanner.Scan(
		&job.ID,
		&job.JobID,
		&job.Status,
		&audioPath,
		&artifactsJSON,
		&warningsJSON,
		&extractionMode,
		&failureReason,
		&cancelRequested,
		&createdAt,
		&updatedAt,
		&job.Revision,
	)
	if err != nil {
		return nil, err
	}

	job.AudioPath = audioPath.String
	job.ExtractionMode = extractionMode.String
	job.FailureReason = failureReason.String
	job.CancelRequested = cancelRequested != 0

	if err := json.Unmarshal([]byte(artifactsJSON), &job.StageArtifacts); err != nil {
		return nil, fmt.Errorf("unmarshal stage artifacts: %w", err)
	}
	if err := json.Unmarshal([]byte(warningsJSON), &job.Warnings); err != nil {
		return nil, fmt.Errorf("unmarshal warnings: %w", err)
	}

	if job.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &job, nil
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", count), ", ")
}
