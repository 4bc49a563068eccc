package ingest

import (
	"database/sql"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/squidcast/internal/models"
	"github.com/lox/squidcast/internal/store"
)

func nf(v float64) sql.NullFloat64 { return sql.NullFloat64{Float64: v, Valid: true} }

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name      string
		rec       models.Record
		wantFlags []string
	}{
		{
			name:      "plausible record - no flags",
			rec:       models.Record{SST: nf(28.4), Chl: nf(0.31), SSH: nf(0.72), Abundance: nf(54)},
			wantFlags: nil,
		},
		{
			name:      "missing values are not flagged",
			rec:       models.Record{},
			wantFlags: nil,
		},
		{
			name:      "sst too hot",
			rec:       models.Record{SST: nf(45)},
			wantFlags: []string{FlagSSTOutOfRange},
		},
		{
			name:      "sst at cold boundary - valid",
			rec:       models.Record{SST: nf(-2)},
			wantFlags: nil,
		},
		{
			name:      "negative chlorophyll",
			rec:       models.Record{Chl: nf(-0.1)},
			wantFlags: []string{FlagChlNegative},
		},
		{
			name:      "ssh out of range",
			rec:       models.Record{SSH: nf(4.2)},
			wantFlags: []string{FlagSSHOutOfRange},
		},
		{
			name:      "multiple flags",
			rec:       models.Record{SST: nf(-5), Abundance: nf(-1)},
			wantFlags: []string{FlagSSTOutOfRange, FlagAbundanceNegative},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateRecord(&tt.rec)
			if !reflect.DeepEqual(got, tt.wantFlags) {
				t.Errorf("ValidateRecord() = %v, want %v", got, tt.wantFlags)
			}
		})
	}
}

func TestQualityFlagsToJSON(t *testing.T) {
	if got := QualityFlagsToJSON(nil); got != "" {
		t.Errorf("QualityFlagsToJSON(nil) = %q, want empty", got)
	}
	got := QualityFlagsToJSON([]string{FlagChlNegative})
	var flags []string
	if err := json.Unmarshal([]byte(got), &flags); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(flags) != 1 || flags[0] != FlagChlNegative {
		t.Errorf("flags = %v", flags)
	}
}

const datasetCSV = `latitude,longitude,date,sst,chl,ssh,squid_abundance_per_kgs
11.5,123.5,2020-01-15,28.1,0.31,0.70,40.5
11.5,123.5,2020-02-01,n/a,0.29,0.71,42
11.5,123.5,2020-03-01,28.4,,0.69,bad
north,123.5,2020-04-01,28.4,0.3,0.69,41

11.2,123.9,not a date,28.0,0.3,0.7,12
11.2,123.9,2020-01,27.9,0.33,0.68,13
`

func TestParseDataset(t *testing.T) {
	res, err := ParseDataset(strings.NewReader(datasetCSV))
	if err != nil {
		t.Fatalf("ParseDataset: %v", err)
	}
	if res.Rows != 6 {
		t.Errorf("Rows = %d, want 6", res.Rows)
	}
	if len(res.Records) != 4 {
		t.Fatalf("records = %d, want 4", len(res.Records))
	}
	if res.ParseErrors != 2 {
		t.Errorf("ParseErrors = %d, want 2", res.ParseErrors)
	}
	if !strings.HasPrefix(res.FirstError, "line 5: latitude") {
		t.Errorf("FirstError = %q", res.FirstError)
	}

	first := res.Records[0]
	if !first.Month.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Month = %s, want truncated to 2020-01-01", first.Month)
	}
	if first.Abundance.Float64 != 40.5 || !first.Abundance.Valid {
		t.Errorf("Abundance = %+v", first.Abundance)
	}
	if res.Records[1].SST.Valid {
		t.Error("non-numeric sst should be NULL")
	}
	if res.Records[2].Chl.Valid || res.Records[2].Abundance.Valid {
		t.Error("empty chl and non-numeric abundance should be NULL")
	}
	if res.Records[3].Latitude != 11.2 || res.Records[3].Month.Month() != time.January {
		t.Errorf("last record = %+v", res.Records[3])
	}
}

func TestParseDataset_HeaderVariants(t *testing.T) {
	doc := "\ufeffLatitude, Longitude ,DATE,SST,CHL,SSH,Abundance\n11.5,123.5,2020-01-01,28,0.3,0.7,40\n"
	res, err := ParseDataset(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseDataset: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].Abundance.Float64 != 40 {
		t.Errorf("records = %+v", res.Records)
	}
}

func TestParseDataset_MissingColumns(t *testing.T) {
	_, err := ParseDataset(strings.NewReader("latitude,longitude,date,sst\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, col := range []string{"chl", "ssh", "squid_abundance_per_kgs"} {
		if !strings.Contains(err.Error(), col) {
			t.Errorf("error %q does not name %s", err, col)
		}
	}
}

const metadataCSV = `hotspot_id,latitude,longitude,name,depth_m
1,11.2,123.9,Carigara Bay,40
2,11.5,123.5,Samar Sea,85
`

func TestParseMetadata(t *testing.T) {
	hotspots, err := ParseMetadata(strings.NewReader(metadataCSV))
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}
	if len(hotspots) != 2 {
		t.Fatalf("hotspots = %d, want 2", len(hotspots))
	}
	h := hotspots[1]
	if h.HotspotID != 2 || h.Latitude != 11.5 || h.Longitude != 123.5 {
		t.Errorf("hotspot = %+v", h)
	}
	want := []models.Attribute{{Name: "name", Value: "Samar Sea"}, {Name: "depth_m", Value: "85"}}
	if !reflect.DeepEqual(h.Attributes, want) {
		t.Errorf("Attributes = %+v, want %+v", h.Attributes, want)
	}
}

func TestParseMetadata_ByteOrderMark(t *testing.T) {
	doc := "\ufeffname,hotspot_id,latitude,longitude\nCarigara Bay,1,11.2,123.9\n"
	hotspots, err := ParseMetadata(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}
	if len(hotspots) != 1 {
		t.Fatalf("hotspots = %d, want 1", len(hotspots))
	}
	want := []models.Attribute{{Name: "name", Value: "Carigara Bay"}}
	if !reflect.DeepEqual(hotspots[0].Attributes, want) {
		t.Errorf("Attributes = %q, want %q", hotspots[0].Attributes, want)
	}
}

func TestParseMetadata_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing id column", "latitude,longitude\n1,2\n"},
		{"bad id", "hotspot_id,latitude,longitude\nx,1,2\n"},
		{"duplicate id", "hotspot_id,latitude,longitude\n1,1,2\n1,3,4\n"},
		{"bad latitude", "hotspot_id,latitude,longitude\n1,91,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMetadata(strings.NewReader(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestImporter(t *testing.T) {
	s := setupTestStore(t)
	imp := NewImporter(s)

	sum, err := imp.ImportDataset("file", "data/dataset.csv", []byte(datasetCSV))
	if err != nil {
		t.Fatalf("ImportDataset: %v", err)
	}
	if sum.Stored != 4 || sum.ParseErrors != 2 || sum.Duplicate {
		t.Errorf("summary = %+v", sum)
	}

	records, err := s.GetRecords()
	if err != nil {
		t.Fatalf("GetRecords: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("records = %d, want 4", len(records))
	}
	for _, r := range records {
		if !r.IngestRunID.Valid || r.IngestRunID.Int64 != sum.RunID {
			t.Errorf("record %+v not linked to run %d", r, sum.RunID)
		}
	}

	again, err := imp.ImportDataset("file", "data/dataset.csv", []byte(datasetCSV))
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if !again.Duplicate {
		t.Error("expected duplicate payload on re-import")
	}
	if n, _ := s.CountRecords(); n != 4 {
		t.Errorf("count after re-import = %d, want 4", n)
	}

	if _, err := imp.ImportMetadata("file", "data/hotspot_metadata.csv", []byte(metadataCSV)); err != nil {
		t.Fatalf("ImportMetadata: %v", err)
	}
	hotspots, err := s.GetHotspots()
	if err != nil {
		t.Fatalf("GetHotspots: %v", err)
	}
	if len(hotspots) != 2 || hotspots[0].Attr("name") != "Carigara Bay" {
		t.Errorf("hotspots = %+v", hotspots)
	}

	runs, err := s.GetRecentIngestRuns(10)
	if err != nil {
		t.Fatalf("GetRecentIngestRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("runs = %d, want 3", len(runs))
	}
	for _, r := range runs {
		if !r.Success {
			t.Errorf("run %d not successful: %+v", r.ID, r)
		}
	}
}

func TestImporter_Replay(t *testing.T) {
	s := setupTestStore(t)
	imp := NewImporter(s)

	if sum, err := imp.Replay(KindDataset); err != nil || sum != nil {
		t.Fatalf("Replay on empty store = %+v, %v", sum, err)
	}

	if _, err := imp.ImportDataset("file", "data/dataset.csv", []byte(datasetCSV)); err != nil {
		t.Fatalf("ImportDataset: %v", err)
	}
	sum, err := imp.Replay(KindDataset)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if sum.Stored != 4 || !sum.Duplicate {
		t.Errorf("summary = %+v, want 4 stored from a known payload", sum)
	}
	if n, _ := s.CountRecords(); n != 4 {
		t.Errorf("count after replay = %d, want 4", n)
	}

	if _, err := imp.Replay("weather"); err != nil {
		t.Errorf("unknown kind with no payloads should be a no-op, got %v", err)
	}
}

func TestImporter_FailedParseIsRecorded(t *testing.T) {
	s := setupTestStore(t)
	imp := NewImporter(s)

	if _, err := imp.ImportDataset("file", "bad.csv", []byte("foo,bar\n1,2\n")); err == nil {
		t.Fatal("expected error")
	}
	runs, err := s.GetRecentIngestRuns(1)
	if err != nil {
		t.Fatalf("GetRecentIngestRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Success || !runs[0].ErrorMessage.Valid {
		t.Errorf("run = %+v, want failed with message", runs)
	}
}

func TestFTPSourceLocation(t *testing.T) {
	src := NewFTPSource("ftp.example.org:21", "/pub/squid/dataset.csv")
	if got := src.Location(); got != "ftp://ftp.example.org:21/pub/squid/dataset.csv" {
		t.Errorf("Location = %q", got)
	}
}
