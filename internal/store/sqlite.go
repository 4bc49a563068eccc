package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lox/squidcast/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const upsertRecordSQL = `
	INSERT INTO records (latitude, longitude, month, sst, chl, ssh, abundance, quality_flags, ingest_run_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(latitude, longitude, month) DO UPDATE SET
		sst = excluded.sst,
		chl = excluded.chl,
		ssh = excluded.ssh,
		abundance = excluded.abundance,
		quality_flags = excluded.quality_flags,
		ingest_run_id = excluded.ingest_run_id
`

func (s *Store) UpsertRecord(r models.Record) error {
	_, err := s.db.Exec(upsertRecordSQL, r.Latitude, r.Longitude, r.Month.UTC(), r.SST, r.Chl, r.SSH, r.Abundance, nullString(r.QualityFlags), r.IngestRunID)
	return err
}

// UpsertRecords writes all records in a single transaction and returns the
// number stored.
func (s *Store) UpsertRecords(records []models.Record) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}

	stmt, err := tx.Prepare(upsertRecordSQL)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	stored := 0
	for _, r := range records {
		if _, err := stmt.Exec(r.Latitude, r.Longitude, r.Month.UTC(), r.SST, r.Chl, r.SSH, r.Abundance, nullString(r.QualityFlags), r.IngestRunID); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("upsert record %.4f,%.4f %s: %w", r.Latitude, r.Longitude, r.Month.Format("2006-01"), err)
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit records: %w", err)
	}
	return stored, nil
}

// GetRecords returns every record ordered by coordinate then month, which is
// the order feature derivation expects.
func (s *Store) GetRecords() ([]models.Record, error) {
	rows, err := s.db.Query(`
		SELECT id, latitude, longitude, month, sst, chl, ssh, abundance, quality_flags, ingest_run_id, created_at
		FROM records
		ORDER BY latitude ASC, longitude ASC, month ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var r models.Record
		var flags sql.NullString
		if err := rows.Scan(&r.ID, &r.Latitude, &r.Longitude, &r.Month, &r.SST, &r.Chl, &r.SSH, &r.Abundance, &flags, &r.IngestRunID, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Month = r.Month.UTC()
		r.QualityFlags = flags.String
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) CountRecords() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&n)
	return n, err
}

func (s *Store) UpsertHotspot(h models.HotspotMeta) error {
	attrs, err := json.Marshal(h.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO hotspots (hotspot_id, latitude, longitude, attributes)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(hotspot_id) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			attributes = excluded.attributes
	`, h.HotspotID, h.Latitude, h.Longitude, string(attrs))
	return err
}

func (s *Store) GetHotspots() ([]models.HotspotMeta, error) {
	rows, err := s.db.Query(`SELECT hotspot_id, latitude, longitude, attributes FROM hotspots ORDER BY hotspot_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hotspots []models.HotspotMeta
	for rows.Next() {
		h, err := scanHotspot(rows)
		if err != nil {
			return nil, err
		}
		hotspots = append(hotspots, *h)
	}
	return hotspots, rows.Err()
}

func (s *Store) GetHotspot(id int) (*models.HotspotMeta, error) {
	row := s.db.QueryRow(`SELECT hotspot_id, latitude, longitude, attributes FROM hotspots WHERE hotspot_id = ?`, id)
	h, err := scanHotspot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHotspot(sc scanner) (*models.HotspotMeta, error) {
	var h models.HotspotMeta
	var attrs sql.NullString
	if err := sc.Scan(&h.HotspotID, &h.Latitude, &h.Longitude, &attrs); err != nil {
		return nil, err
	}
	if attrs.Valid && attrs.String != "" && attrs.String != "null" {
		if err := json.Unmarshal([]byte(attrs.String), &h.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes for hotspot %d: %w", h.HotspotID, err)
		}
	}
	return &h, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
