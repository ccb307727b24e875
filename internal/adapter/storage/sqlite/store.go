package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/peakclips/internal/domain"
	"github.com/bnema/peakclips/internal/port"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store persists jobs in SQLite. Status history survives restarts, although
// jobs interrupted by a restart are never resumed.
type Store struct {
	db *sql.DB
}

var hookOnce sync.Once

func registerHook() {
	hookOnce.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
				"PRAGMA cache_size = -8000", // 8MB
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(context.Background(), p, nil); err != nil {
					return fmt.Errorf("execute %s: %w", p, err)
				}
			}
			return nil
		})
	})
}

func NewStore(dataDir string) (*Store, error) {
	registerHook()

	db, err := sql.Open("sqlite", filepath.Join(dataDir, "peakclips.db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection: SQLite has one writer and Set must read-then-write atomically.
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	clips, err := encodeClips(job.Clips)
	if err != nil {
		return err
	}
	clip, total := progressColumns(job.Progress)

	_, err = s.db.ExecContext(context.Background(), `
		INSERT INTO jobs (id, status, clips_json, progress_clip, progress_total, reason, source_digest, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), clips, clip, total, string(job.Reason), job.SourceDigest,
		job.CreatedAt.UnixNano(), job.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

func (s *Store) Get(id string) (*domain.Job, error) {
	row := s.db.QueryRowContext(context.Background(), `
		SELECT id, status, clips_json, progress_clip, progress_total, reason, source_digest, created_at, updated_at
		FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (s *Store) Set(job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	clips, err := encodeClips(job.Clips)
	if err != nil {
		return err
	}
	clip, total := progressColumns(job.Progress)

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, job.ID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("load job %s: %w", job.ID, err)
	}
	if !domain.CanTransition(domain.JobStatus(current), job.Status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, job.Status)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, clips_json = ?, progress_clip = ?, progress_total = ?,
			reason = ?, source_digest = ?, updated_at = ?
		WHERE id = ?`,
		string(job.Status), clips, clip, total, string(job.Reason), job.SourceDigest,
		job.UpdatedAt.UnixNano(), job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	return tx.Commit()
}

func (s *Store) Delete(id string) error {
	_, err := s.db.ExecContext(context.Background(), `DELETE FROM jobs WHERE id = ?`, id)
	return err
}

func (s *Store) ListTerminalBefore(cutoff time.Time) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT id, status, clips_json, progress_clip, progress_total, reason, source_digest, created_at, updated_at
		FROM jobs WHERE status IN (?, ?) AND updated_at < ?`,
		string(domain.JobStatusDone), string(domain.JobStatusError), cutoff.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Interrupted lists jobs left non-terminal by a previous process.
func (s *Store) Interrupted() ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT id, status, clips_json, progress_clip, progress_total, reason, source_digest, created_at, updated_at
		FROM jobs WHERE status IN (?, ?)`,
		string(domain.JobStatusStarting), string(domain.JobStatusProcessing))
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.Job, error) {
	var (
		job              domain.Job
		status, reason   string
		clipsJSON        string
		clip, total      int64
		created, updated int64
	)
	if err := row.Scan(&job.ID, &status, &clipsJSON, &clip, &total, &reason, &job.SourceDigest, &created, &updated); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.Reason = domain.FailureReason(reason)
	job.CreatedAt = time.Unix(0, created).UTC()
	job.UpdatedAt = time.Unix(0, updated).UTC()
	if total > 0 {
		job.Progress = &domain.Progress{Clip: int(clip), Total: int(total)}
	}
	if clipsJSON != "" {
		if err := json.Unmarshal([]byte(clipsJSON), &job.Clips); err != nil {
			return nil, fmt.Errorf("decode clips for job %s: %w", job.ID, err)
		}
	}
	return &job, nil
}

func encodeClips(clips []domain.ClipResult) (string, error) {
	if len(clips) == 0 {
		return "", nil
	}
	b, err := json.Marshal(clips)
	if err != nil {
		return "", fmt.Errorf("encode clips: %w", err)
	}
	return string(b), nil
}

func progressColumns(p *domain.Progress) (int64, int64) {
	if p == nil {
		return 0, 0
	}
	return int64(p.Clip), int64(p.Total)
}

var _ port.JobStore = (*Store)(nil)
