package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for the history tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS job_history (
		job_id            TEXT PRIMARY KEY,
		user_name         TEXT NOT NULL,
		source_group      TEXT NOT NULL,
		old_resource_name TEXT NOT NULL DEFAULT '',
		target_group      TEXT NOT NULL,
		new_resource_name TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL,
		stage             TEXT NOT NULL,
		start_time        TEXT,
		end_time          TEXT NOT NULL,
		message           TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE INDEX IF NOT EXISTS idx_job_history_status ON job_history(status)`,
	`CREATE INDEX IF NOT EXISTS idx_job_history_user ON job_history(user_name COLLATE NOCASE)`,
	`CREATE INDEX IF NOT EXISTS idx_job_history_end_time ON job_history(end_time)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "job_history",
		column:   "anomalies",
		alterSQL: "ALTER TABLE job_history ADD COLUMN anomalies INTEGER NOT NULL DEFAULT 0",
	},
	{
		table:    "job_history",
		column:   "recorded_at",
		alterSQL: "ALTER TABLE job_history ADD COLUMN recorded_at TEXT NOT NULL DEFAULT ''",
	},
}

// migrate executes all schema DDL statements and alter migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if found {
		return nil
	}
	rows.Close()

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
