package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Karthik-guddanti/digantara/internal/job"
	"github.com/Karthik-guddanti/digantara/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Create(ctx context.Context, in CreateJob) (job.Job, error) {
	now := time.Now().UTC()
	j := job.Job{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Description:  in.Description,
		CronSchedule: in.CronSchedule,
		Type:         in.Type.Normalize(),
		Data:         in.Data,
		Status:       job.StatusActive,
		NextRun:      in.NextRun,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	data, err := marshalData(j.Data)
	if err != nil {
		return job.Job{}, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs(id, name, description, cron_schedule, type, data, status, last_run, next_run, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.Name, j.Description, j.CronSchedule, string(j.Type), data, string(j.Status),
		nullTime(j.LastRun), nullTime(j.NextRun), fmtTime(j.CreatedAt), fmtTime(j.UpdatedAt),
	)
	if err != nil {
		return job.Job{}, err
	}
	return j, nil
}

const jobColumns = `id, name, description, cron_schedule, type, data, status, last_run, next_run, created_at, updated_at`

func (s *sqliteStore) FindByID(ctx context.Context, id string) (job.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return job.Job{}, ErrNotFound
	}
	return j, err
}

func (s *sqliteStore) FindAll(ctx context.Context) ([]job.Job, error) {
	return s.query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at`)
}

func (s *sqliteStore) FindActive(ctx context.Context) ([]job.Job, error) {
	return s.query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at`, string(job.StatusActive))
}

func (s *sqliteStore) query(ctx context.Context, q string, args ...any) ([]job.Job, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// MarkCompleted flips the job back to active and records last_run in a
// single UPDATE, so a concurrent reader never observes the run result
// half-applied.
func (s *sqliteStore) MarkCompleted(ctx context.Context, id string, lastRun time.Time) error {
	return s.exec(ctx,
		`UPDATE jobs SET status = ?, last_run = ?, updated_at = ? WHERE id = ?`,
		string(job.StatusActive), fmtTime(lastRun), fmtTime(time.Now().UTC()), id,
	)
}

func (s *sqliteStore) MarkFailed(ctx context.Context, id string, lastRun time.Time) error {
	return s.exec(ctx,
		`UPDATE jobs SET status = ?, last_run = ?, updated_at = ? WHERE id = ?`,
		string(job.StatusFailed), fmtTime(lastRun), fmtTime(time.Now().UTC()), id,
	)
}

func (s *sqliteStore) UpdateNextRun(ctx context.Context, id string, next time.Time) error {
	return s.exec(ctx,
		`UPDATE jobs SET next_run = ?, updated_at = ? WHERE id = ?`,
		fmtTime(next), fmtTime(time.Now().UTC()), id,
	)
}

func (s *sqliteStore) UpdateStatus(ctx context.Context, id string, status job.Status) error {
	return s.exec(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), fmtTime(time.Now().UTC()), id,
	)
}

func (s *sqliteStore) exec(ctx context.Context, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- row mapping ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (job.Job, error) {
	var (
		j                job.Job
		typ, status      string
		data             sql.NullString
		lastRun, nextRun sql.NullString
		created, updated string
	)
	err := r.Scan(&j.ID, &j.Name, &j.Description, &j.CronSchedule, &typ, &data, &status,
		&lastRun, &nextRun, &created, &updated)
	if err != nil {
		return job.Job{}, err
	}
	j.Type = job.Type(typ)
	j.Status = job.Status(status)

	if data.Valid && data.String != "" {
		if err := json.Unmarshal([]byte(data.String), &j.Data); err != nil {
			return job.Job{}, fmt.Errorf("decode job data for %s: %w", j.ID, err)
		}
	}
	if j.LastRun, err = parseNullTime(lastRun); err != nil {
		return job.Job{}, err
	}
	if j.NextRun, err = parseNullTime(nextRun); err != nil {
		return job.Job{}, err
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return job.Job{}, err
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return job.Job{}, err
	}
	return j, nil
}

func marshalData(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode job data: %w", err)
	}
	return string(b), nil
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
