package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/deskmove/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// timeFormat has fixed width so stored times sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(v *string) time.Time {
	if v == nil || *v == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeFormat, *v)
	return t
}

func (s *SQLiteStore) SaveSummary(ctx context.Context, sum model.JobSummary) error {
	s.logger.Debug("sql", "op", "upsert", "table", "job_history", "id", sum.JobID)
	if sum.JobID == "" {
		return fmt.Errorf("save summary: empty job id")
	}
	if !sum.Status.IsTerminal() {
		return fmt.Errorf("save summary %s: status %s is not terminal", sum.JobID, sum.Status)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_history (job_id, user_name, source_group, old_resource_name, target_group, new_resource_name,
			status, stage, start_time, end_time, message, anomalies, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET
			user_name = excluded.user_name,
			source_group = excluded.source_group,
			old_resource_name = excluded.old_resource_name,
			target_group = excluded.target_group,
			new_resource_name = excluded.new_resource_name,
			status = excluded.status,
			stage = excluded.stage,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			message = excluded.message,
			anomalies = excluded.anomalies,
			recorded_at = excluded.recorded_at`,
		sum.JobID, sum.User, sum.SourceGroup, sum.OldResourceName, sum.TargetGroup, sum.NewResourceName,
		string(sum.Status), string(sum.Stage), formatTime(sum.StartTime), formatTime(sum.EndTime),
		sum.Message, sum.Anomalies, time.Now().UTC().Format(timeFormat),
	)
	return err
}

const summaryColumns = `job_id, user_name, source_group, old_resource_name, target_group, new_resource_name,
	status, stage, start_time, end_time, message, anomalies`

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (*model.JobSummary, error) {
	var sum model.JobSummary
	var status, stage string
	var startTime, endTime *string
	if err := row.Scan(&sum.JobID, &sum.User, &sum.SourceGroup, &sum.OldResourceName, &sum.TargetGroup,
		&sum.NewResourceName, &status, &stage, &startTime, &endTime, &sum.Message, &sum.Anomalies); err != nil {
		return nil, err
	}
	sum.Status = model.Status(status)
	sum.Stage = model.Stage(stage)
	sum.StartTime = parseTime(startTime)
	sum.EndTime = parseTime(endTime)
	return &sum, nil
}

func (s *SQLiteStore) GetSummary(ctx context.Context, jobID string) (*model.JobSummary, error) {
	s.logger.Debug("sql", "op", "select", "table", "job_history", "id", jobID)

	row := s.db.QueryRowContext(ctx, `SELECT `+summaryColumns+` FROM job_history WHERE job_id = ?`, jobID)
	sum, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sum, err
}

func (s *SQLiteStore) ListSummaries(ctx context.Context, opts model.ListOptions) ([]*model.JobSummary, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "job_history", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	// Build WHERE clause dynamically based on filters.
	var whereClauses []string
	var countArgs []any

	if opts.Status != "" {
		whereClauses = append(whereClauses, "status = ?")
		countArgs = append(countArgs, opts.Status)
	}
	if opts.User != "" {
		whereClauses = append(whereClauses, "user_name = ? COLLATE NOCASE")
		countArgs = append(countArgs, opts.User)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_history`+whereSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT ` + summaryColumns + ` FROM job_history` + whereSQL +
		` ORDER BY end_time DESC, job_id LIMIT ? OFFSET ?`
	listArgs := append(countArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*model.JobSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sum)
	}
	return out, total, rows.Err()
}
