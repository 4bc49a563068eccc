package store

import (
	"database/sql"
	"time"
)

// IngestRun represents a single dataset or metadata import for auditing.
type IngestRun struct {
	ID            int64
	StartedAt     time.Time
	FinishedAt    sql.NullTime
	Source        string // "file", "ftp"
	Kind          string // "dataset", "metadata"
	Location      sql.NullString
	RecordsParsed sql.NullInt64
	RecordsStored sql.NullInt64
	ParseErrors   sql.NullInt64 // Number of rows that failed to parse
	Success       bool
	ErrorMessage  sql.NullString
}

// StartIngestRun creates a new ingest run record and returns it.
func (s *Store) StartIngestRun(source, kind string, location *string) (*IngestRun, error) {
	run := &IngestRun{
		StartedAt: time.Now().UTC(),
		Source:    source,
		Kind:      kind,
	}
	if location != nil {
		run.Location = sql.NullString{String: *location, Valid: true}
	}

	result, err := s.db.Exec(`
		INSERT INTO ingest_runs (started_at, source, kind, location, success)
		VALUES (?, ?, ?, ?, FALSE)
	`, run.StartedAt, run.Source, run.Kind, run.Location)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return run, nil
}

// CompleteIngestRun updates the ingest run with results.
func (s *Store) CompleteIngestRun(run *IngestRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE ingest_runs SET
			finished_at = ?,
			records_parsed = ?,
			records_stored = ?,
			parse_errors = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.RecordsParsed, run.RecordsStored, run.ParseErrors,
		run.Success, run.ErrorMessage, run.ID)
	return err
}

// GetRecentIngestRuns returns the most recent ingest runs, newest first.
func (s *Store) GetRecentIngestRuns(limit int) ([]IngestRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, source, kind, location,
		       records_parsed, records_stored, parse_errors, success, error_message
		FROM ingest_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IngestRun
	for rows.Next() {
		var r IngestRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.Kind, &r.Location,
			&r.RecordsParsed, &r.RecordsStored, &r.ParseErrors, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
