package ingest

import (
	"bytes"
	"database/sql"
	"fmt"
	"log"

	"github.com/lox/squidcast/internal/metrics"
	"github.com/lox/squidcast/internal/store"
)

const (
	KindDataset  = "dataset"
	KindMetadata = "metadata"
)

// Importer loads source files into the store, recording an ingest run and a
// compressed copy of every payload.
type Importer struct {
	store *store.Store
}

func NewImporter(s *store.Store) *Importer {
	return &Importer{store: s}
}

// ImportSummary reports what one import did.
type ImportSummary struct {
	RunID       int64
	Parsed      int
	Stored      int
	ParseErrors int
	Flagged     int
	Duplicate   bool
}

// ImportDataset parses a historical CSV and upserts its records.
func (i *Importer) ImportDataset(source, location string, payload []byte) (*ImportSummary, error) {
	run, err := i.store.StartIngestRun(source, KindDataset, &location)
	if err != nil {
		return nil, fmt.Errorf("start ingest run: %w", err)
	}
	summary := &ImportSummary{RunID: run.ID}

	err = i.importDataset(run, source, payload, summary)
	if err != nil {
		run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	}
	run.Success = err == nil
	if cerr := i.store.CompleteIngestRun(run); cerr != nil {
		log.Printf("ingest: failed to complete run %d: %v", run.ID, cerr)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("ingest: %s dataset from %s: parsed %d, stored %d, %d parse errors, %d flagged",
		source, location, summary.Parsed, summary.Stored, summary.ParseErrors, summary.Flagged)
	return summary, nil
}

func (i *Importer) importDataset(run *store.IngestRun, source string, payload []byte, summary *ImportSummary) error {
	payloadID, err := i.store.StoreRawPayload(&run.ID, source, KindDataset, payload)
	if err != nil {
		log.Printf("ingest: failed to store raw payload: %v", err)
	}
	summary.Duplicate = err == nil && payloadID == 0

	parsed, err := ParseDataset(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("parse dataset: %w", err)
	}
	summary.Parsed = len(parsed.Records)
	summary.ParseErrors = parsed.ParseErrors
	run.RecordsParsed = sql.NullInt64{Int64: int64(len(parsed.Records)), Valid: true}
	if parsed.ParseErrors > 0 {
		run.ParseErrors = sql.NullInt64{Int64: int64(parsed.ParseErrors), Valid: true}
		log.Printf("ingest: %d rows skipped, first: %s", parsed.ParseErrors, parsed.FirstError)
	}

	for j := range parsed.Records {
		r := &parsed.Records[j]
		r.IngestRunID = sql.NullInt64{Int64: run.ID, Valid: true}
		if flags := ValidateRecord(r); len(flags) > 0 {
			r.QualityFlags = QualityFlagsToJSON(flags)
			summary.Flagged++
		}
	}

	stored, err := i.store.UpsertRecords(parsed.Records)
	if err != nil {
		return fmt.Errorf("store records: %w", err)
	}
	summary.Stored = stored
	run.RecordsStored = sql.NullInt64{Int64: int64(stored), Valid: true}
	metrics.RecordsIngested.WithLabelValues(source).Add(float64(stored))
	return nil
}

// ImportMetadata parses the hotspot reference table and upserts every row.
func (i *Importer) ImportMetadata(source, location string, payload []byte) (*ImportSummary, error) {
	run, err := i.store.StartIngestRun(source, KindMetadata, &location)
	if err != nil {
		return nil, fmt.Errorf("start ingest run: %w", err)
	}
	summary := &ImportSummary{RunID: run.ID}

	err = func() error {
		if _, err := i.store.StoreRawPayload(&run.ID, source, KindMetadata, payload); err != nil {
			log.Printf("ingest: failed to store raw payload: %v", err)
		}
		hotspots, err := ParseMetadata(bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("parse metadata: %w", err)
		}
		summary.Parsed = len(hotspots)
		run.RecordsParsed = sql.NullInt64{Int64: int64(len(hotspots)), Valid: true}
		for _, h := range hotspots {
			if err := i.store.UpsertHotspot(h); err != nil {
				return fmt.Errorf("store hotspot %d: %w", h.HotspotID, err)
			}
			summary.Stored++
		}
		run.RecordsStored = sql.NullInt64{Int64: int64(summary.Stored), Valid: true}
		return nil
	}()
	if err != nil {
		run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	}
	run.Success = err == nil
	if cerr := i.store.CompleteIngestRun(run); cerr != nil {
		log.Printf("ingest: failed to complete run %d: %v", run.ID, cerr)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("ingest: %s metadata from %s: %d hotspots", source, location, summary.Stored)
	return summary, nil
}

// Replay re-imports the most recently stored payload of kind, for example
// after a parser change. It returns nil when nothing has been stored yet.
func (i *Importer) Replay(kind string) (*ImportSummary, error) {
	id, err := i.store.LatestRawPayload(kind)
	if err != nil {
		return nil, fmt.Errorf("find %s payload: %w", kind, err)
	}
	if id == 0 {
		return nil, nil
	}
	payload, err := i.store.GetRawPayload(id)
	if err != nil {
		return nil, err
	}

	location := fmt.Sprintf("raw_payloads/%d", id)
	switch kind {
	case KindDataset:
		return i.ImportDataset("replay", location, payload)
	case KindMetadata:
		return i.ImportMetadata("replay", location, payload)
	default:
		return nil, fmt.Errorf("unknown payload kind %q", kind)
	}
}
