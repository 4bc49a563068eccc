package ingest

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lox/squidcast/internal/models"
)

// ParseResult holds the records parsed from one dataset file.
type ParseResult struct {
	Records     []models.Record
	Rows        int
	ParseErrors int
	FirstError  string
}

func (p *ParseResult) addError(line int, format string, args ...any) {
	p.ParseErrors++
	if p.FirstError == "" {
		p.FirstError = fmt.Sprintf("line %d: ", line) + fmt.Sprintf(format, args...)
	}
}

var datasetColumns = map[string][]string{
	"latitude":  {"latitude", "lat"},
	"longitude": {"longitude", "lon", "lng"},
	"date":      {"date", "month"},
	"sst":       {"sst"},
	"chl":       {"chl", "chlorophyll"},
	"ssh":       {"ssh"},
	"abundance": {"squid_abundance_per_kgs", "abundance"},
}

// ParseDataset reads the historical CSV. Non-numeric covariate and target
// cells become NULL. Rows with a bad coordinate or date are skipped and
// counted.
func ParseDataset(r io.Reader) (*ParseResult, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	idx, err := columnIndex(header, datasetColumns)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{}
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		if isBlank(row) {
			continue
		}
		result.Rows++

		lat, err := parseCoordinate(field(row, idx["latitude"]), 90)
		if err != nil {
			result.addError(line, "latitude: %v", err)
			continue
		}
		lon, err := parseCoordinate(field(row, idx["longitude"]), 180)
		if err != nil {
			result.addError(line, "longitude: %v", err)
			continue
		}
		month, err := parseMonth(field(row, idx["date"]))
		if err != nil {
			result.addError(line, "date: %v", err)
			continue
		}

		rec := models.Record{
			Latitude:  lat,
			Longitude: lon,
			Month:     month,
			SST:       parseNullable(field(row, idx["sst"])),
			Chl:       parseNullable(field(row, idx["chl"])),
			SSH:       parseNullable(field(row, idx["ssh"])),
			Abundance: parseNullable(field(row, idx["abundance"])),
		}
		result.Records = append(result.Records, rec)
	}
	return result, nil
}

// ParseMetadata reads the hotspot reference table. Columns other than
// hotspot_id, latitude and longitude are kept as attributes in file order.
func ParseMetadata(r io.Reader) ([]models.HotspotMeta, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	idx, err := columnIndex(header, map[string][]string{
		"hotspot_id": {"hotspot_id", "id"},
		"latitude":   {"latitude", "lat"},
		"longitude":  {"longitude", "lon", "lng"},
	})
	if err != nil {
		return nil, err
	}
	core := map[int]bool{idx["hotspot_id"]: true, idx["latitude"]: true, idx["longitude"]: true}

	var out []models.HotspotMeta
	seen := make(map[int]bool)
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		if isBlank(row) {
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(row[idx["hotspot_id"]]))
		if err != nil || id < 1 {
			return nil, fmt.Errorf("line %d: invalid hotspot_id %q", line, row[idx["hotspot_id"]])
		}
		if seen[id] {
			return nil, fmt.Errorf("line %d: duplicate hotspot_id %d", line, id)
		}
		seen[id] = true

		lat, err := parseCoordinate(row[idx["latitude"]], 90)
		if err != nil {
			return nil, fmt.Errorf("line %d: latitude: %w", line, err)
		}
		lon, err := parseCoordinate(row[idx["longitude"]], 180)
		if err != nil {
			return nil, fmt.Errorf("line %d: longitude: %w", line, err)
		}

		h := models.HotspotMeta{HotspotID: id, Latitude: lat, Longitude: lon}
		for i, name := range header {
			if core[i] || i >= len(row) {
				continue
			}
			h.Attributes = append(h.Attributes, models.Attribute{
				Name:  strings.TrimSpace(name),
				Value: strings.TrimSpace(row[i]),
			})
		}
		out = append(out, h)
	}
	return out, nil
}

// readHeader reads the header row, dropping a UTF-8 byte order mark from the
// first name.
func readHeader(cr *csv.Reader) ([]string, error) {
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header, nil
}

// columnIndex resolves each wanted column to its header position. Header
// names are matched case-insensitively after trimming.
func columnIndex(header []string, want map[string][]string) (map[string]int, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := pos[key]; !dup {
			pos[key] = i
		}
	}

	idx := make(map[string]int, len(want))
	var missing []string
	for col, aliases := range want {
		found := false
		for _, a := range aliases {
			if i, ok := pos[a]; ok {
				idx[col] = i
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, aliases[0])
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func parseCoordinate(raw string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", raw)
	}
	if math.IsNaN(v) || math.Abs(v) > limit {
		return 0, fmt.Errorf("out of range: %v", v)
	}
	return v, nil
}

// parseNullable coerces a cell to a number. Anything non-numeric is NULL.
func parseNullable(raw string) sql.NullFloat64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"Jan 2006",
}

// parseMonth parses a date and truncates it to the first of the month, UTC.
func parseMonth(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}
