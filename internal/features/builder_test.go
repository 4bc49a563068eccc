package features

import (
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/lox/squidcast/internal/config"
	"github.com/lox/squidcast/internal/models"
)

func val(v float64) sql.NullFloat64 { return sql.NullFloat64{Float64: v, Valid: true} }

// makeSeries returns n monthly records at (lat, lon) starting at start,
// with abundance = base+i and sst = 28+0.1*i.
func makeSeries(lat, lon float64, start time.Time, n int, base float64) []models.Record {
	var out []models.Record
	for i := 0; i < n; i++ {
		out = append(out, models.Record{
			Latitude:  lat,
			Longitude: lon,
			Month:     start.AddDate(0, i, 0),
			SST:       val(28 + 0.1*float64(i)),
			Chl:       val(0.3 + 0.01*float64(i)),
			SSH:       val(0.5 + 0.02*float64(i)),
			Abundance: val(base + float64(i)),
		})
	}
	return out
}

func testConfig(features ...string) config.Forecast {
	cfg := config.Default()
	cfg.Features = features
	return cfg
}

var jan2020 = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

func TestBuild_DropsLeadingRecords(t *testing.T) {
	cfg := testConfig("sst", "abundance_lag1", "abundance_lag6")
	ds, err := Build(cfg, makeSeries(11.5, 123.5, jan2020, 10, 100))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ds.Hotspots()) != 1 {
		t.Fatalf("hotspots = %d, want 1", len(ds.Hotspots()))
	}
	h := ds.Hotspot(1)
	if h.Len() != 4 {
		t.Fatalf("surviving records = %d, want 4", h.Len())
	}
	if !h.Months[0].Equal(jan2020.AddDate(0, 6, 0)) {
		t.Errorf("first surviving month = %s, want July 2020", h.Months[0])
	}
	// record 6: abundance 106, lag1 105, lag6 100
	want := []float64{28.6, 105, 100}
	for i, w := range want {
		if math.Abs(h.Vectors[0][i]-w) > 1e-9 {
			t.Errorf("vector[0][%d] = %v, want %v", i, h.Vectors[0][i], w)
		}
	}
	if h.Targets[0] != 106 {
		t.Errorf("target = %v, want 106", h.Targets[0])
	}
}

func TestBuild_LagsStayWithinHotspot(t *testing.T) {
	// B's history ends the month before A's begins.
	b := makeSeries(10.0, 120.0, jan2020, 8, 1000)
	a := makeSeries(12.0, 124.0, jan2020.AddDate(0, 8, 0), 8, 0)
	records := append(append([]models.Record{}, b...), a...)

	ds, err := Build(testConfig("abundance_lag1", "sst_lag6"), records)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ha := ds.HotspotAt(12.0, 124.0)
	if ha == nil {
		t.Fatal("hotspot A missing")
	}
	// A's first surviving record is its own index 6, so lag1 is A's index 5.
	if got := ha.Vectors[0][0]; got != 5 {
		t.Errorf("A lag1 = %v, want 5 (no leak from B)", got)
	}
	if got := ha.Vectors[0][1]; math.Abs(got-28.0) > 1e-9 {
		t.Errorf("A sst_lag6 = %v, want 28.0", got)
	}
}

func TestBuild_HotspotIDsAndFiltering(t *testing.T) {
	var records []models.Record
	records = append(records, makeSeries(11.9, 124.0, jan2020, 9, 0)...)
	records = append(records, makeSeries(11.1, 123.0, jan2020, 9, 0)...)
	records = append(records, makeSeries(11.1, 122.5, jan2020, 9, 0)...)
	// 7 records leaves 1 after the lag drop.
	records = append(records, makeSeries(10.0, 121.0, jan2020, 7, 0)...)

	ds, err := Build(testConfig("sst"), records)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []struct {
		id       int
		lat, lon float64
	}{
		{1, 11.1, 122.5},
		{2, 11.1, 123.0},
		{3, 11.9, 124.0},
	}
	if len(ds.Hotspots()) != len(want) {
		t.Fatalf("hotspots = %d, want %d", len(ds.Hotspots()), len(want))
	}
	for _, w := range want {
		h := ds.Hotspot(w.id)
		if h == nil || h.Latitude != w.lat || h.Longitude != w.lon {
			t.Errorf("Hotspot(%d) = %+v, want (%v, %v)", w.id, h, w.lat, w.lon)
		}
	}
	if ds.HotspotAt(10.0, 121.0) != nil {
		t.Error("short hotspot should be absent")
	}
	if ds.Hotspot(4) != nil || ds.Hotspot(0) != nil {
		t.Error("out of range ids should return nil")
	}
}

func TestBuild_UnsortedInputIsOrdered(t *testing.T) {
	records := makeSeries(11.5, 123.5, jan2020, 9, 0)
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	ds, err := Build(testConfig("abundance_lag1"), records)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	h := ds.Hotspot(1)
	if h.Targets[0] != 6 || h.Vectors[0][0] != 5 {
		t.Errorf("target/lag1 = %v/%v, want 6/5", h.Targets[0], h.Vectors[0][0])
	}
}

func TestBuild_FillsMissing(t *testing.T) {
	records := makeSeries(11.5, 123.5, jan2020, 10, 0)
	records[0].SST = sql.NullFloat64{}
	records[7].SST = sql.NullFloat64{}
	records[8].SST = sql.NullFloat64{}
	records[9].Chl = sql.NullFloat64{}

	ds, err := Build(testConfig("sst", "chl"), records)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	h := ds.Hotspot(1)
	if h.Len() != 4 {
		t.Fatalf("records = %d, want 4", h.Len())
	}
	// Original sst is 28+0.1i, so interpolation between 6 and 9 is exact.
	for i, want := range []float64{28.6, 28.7, 28.8, 28.9} {
		if math.Abs(h.Vectors[i][0]-want) > 1e-9 {
			t.Errorf("sst[%d] = %v, want %v", i, h.Vectors[i][0], want)
		}
	}
	// trailing chl is forward-filled from record 8
	if math.Abs(h.Vectors[3][1]-0.38) > 1e-9 {
		t.Errorf("chl[last] = %v, want 0.38", h.Vectors[3][1])
	}
}

func TestBuild_AllMissingColumnDropsHotspot(t *testing.T) {
	records := makeSeries(11.5, 123.5, jan2020, 10, 0)
	for i := range records {
		records[i].SSH = sql.NullFloat64{}
	}
	ds, err := Build(testConfig("sst"), records)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ds.Hotspots()) != 0 {
		t.Errorf("hotspots = %d, want 0", len(ds.Hotspots()))
	}
}

func TestBuild_RollingStatistics(t *testing.T) {
	records := makeSeries(11.5, 123.5, jan2020, 8, 0)
	for i, v := range []float64{1, 2, 3, 4, 5, 6, 2, 4} {
		records[i].SST = val(v)
	}
	ds, err := Build(testConfig("sst_rolling3", "sst_rolling_std"), records)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	h := ds.Hotspot(1)
	// record 6 window {5, 6, 2}, record 7 window {6, 2, 4}
	tests := []struct {
		row       int
		mean, std float64
	}{
		{0, 13.0 / 3, math.Sqrt(13.0 / 3)},
		{1, 4, 2},
	}
	for _, tt := range tests {
		if math.Abs(h.Vectors[tt.row][0]-tt.mean) > 1e-9 {
			t.Errorf("row %d mean = %v, want %v", tt.row, h.Vectors[tt.row][0], tt.mean)
		}
		if math.Abs(h.Vectors[tt.row][1]-tt.std) > 1e-9 {
			t.Errorf("row %d std = %v, want %v", tt.row, h.Vectors[tt.row][1], tt.std)
		}
	}
}

func TestBuild_RatioZeroDenominatorDropsRecord(t *testing.T) {
	cfg := testConfig("sst_chl_ratio")
	cfg.Ratios = true
	records := makeSeries(11.5, 123.5, jan2020, 10, 0)
	records[8].Chl = val(0)

	ds, err := Build(cfg, records)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	h := ds.Hotspot(1)
	if h.Len() != 3 {
		t.Fatalf("records = %d, want 3", h.Len())
	}
	for _, m := range h.Months {
		if m.Equal(jan2020.AddDate(0, 8, 0)) {
			t.Error("record with zero chl survived")
		}
	}
}

func TestBuild_UnknownColumn(t *testing.T) {
	if _, err := Build(testConfig("sst", "wind"), nil); err == nil {
		t.Fatal("expected error for unknown column")
	}
}

func TestFillMissing(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"interior", []float64{1, nan, nan, 4}, []float64{1, 2, 3, 4}},
		{"edges", []float64{nan, 2, nan, 4, nan}, []float64{2, 2, 3, 4, 4}},
		{"single", []float64{nan, 7, nan}, []float64{7, 7, 7}},
		{"none valid", []float64{nan, nan}, []float64{nan, nan}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := append([]float64(nil), tt.in...)
			fillMissing(got)
			for i := range tt.want {
				if math.IsNaN(tt.want[i]) {
					if !math.IsNaN(got[i]) {
						t.Errorf("[%d] = %v, want NaN", i, got[i])
					}
					continue
				}
				if math.Abs(got[i]-tt.want[i]) > 1e-12 {
					t.Errorf("[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
