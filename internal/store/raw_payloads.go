package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// StoreRawPayload stores a compressed copy of an imported source file.
// Returns the payload ID, or 0 if an identical file was stored before.
func (s *Store) StoreRawPayload(runID *int64, source, kind string, payload []byte) (int64, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return 0, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}

	sum := sha256.Sum256(payload)

	var ingestRunID sql.NullInt64
	if runID != nil {
		ingestRunID = sql.NullInt64{Int64: *runID, Valid: true}
	}

	result, err := s.db.Exec(`
		INSERT INTO raw_payloads (ingest_run_id, fetched_at, source, kind, payload_compressed, payload_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(payload_hash) DO NOTHING
	`, ingestRunID, time.Now().UTC(), source, kind, buf.Bytes(), hex.EncodeToString(sum[:]))
	if err != nil {
		return 0, fmt.Errorf("insert raw payload: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return result.LastInsertId()
}

// GetRawPayload returns the decompressed payload, or nil if id is unknown.
func (s *Store) GetRawPayload(id int64) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRow(`SELECT payload_compressed FROM raw_payloads WHERE id = ?`, id).Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get raw payload %d: %w", id, err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("decompress payload %d: %w", id, err)
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

// LatestRawPayload returns the id of the most recently stored payload of
// kind, or 0 if none exists.
func (s *Store) LatestRawPayload(kind string) (int64, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM raw_payloads WHERE kind = ? ORDER BY id DESC LIMIT 1`, kind).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return id, err
}
