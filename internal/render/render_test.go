package render

import (
	"bytes"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/lox/squidcast/internal/forecast"
	"github.com/lox/squidcast/internal/models"
)

func months(n int) []time.Time {
	var out []time.Time
	for i := 0; i < n; i++ {
		out = append(out, time.Date(2024, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC))
	}
	return out
}

func TestChart(t *testing.T) {
	tests := []struct {
		name    string
		series  []float64
		months  int
		wantErr bool
	}{
		{"several months", []float64{42.1, 40.3, 44.8, 39.0}, 4, false},
		{"single value", []float64{12}, 1, false},
		{"flat series", []float64{5, 5, 5}, 3, false},
		{"empty", nil, 0, true},
		{"missing months", []float64{1, 2, 3}, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Chart(tt.series, months(tt.months), 11.5, 123.5)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Chart: %v", err)
			}
			img, err := png.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("decode png: %v", err)
			}
			if b := img.Bounds(); b.Dx() != ChartWidth || b.Dy() != ChartHeight {
				t.Errorf("bounds = %v", b)
			}
		})
	}
}

func TestChartDataURL(t *testing.T) {
	got := ChartDataURL([]byte{0x89, 'P', 'N', 'G'})
	if got != "data:image/png;base64,iVBORw==" {
		t.Errorf("ChartDataURL = %q", got)
	}
}

func TestCenterOf(t *testing.T) {
	got := CenterOf([]LatLon{{10, 120}, {12, 124}, {11, 121}})
	if got != (LatLon{11, 122}) {
		t.Errorf("CenterOf = %+v, want {11 122}", got)
	}
	if CenterOf(nil) != (LatLon{}) {
		t.Error("CenterOf(nil) should be zero")
	}
}

func TestHeatmap(t *testing.T) {
	snap := forecast.Snapshot{
		Title: "Feb 2024",
		Points: []forecast.Point{
			{HotspotID: 1, Latitude: 11.2, Longitude: 123.9, Value: 40.25,
				Attributes: []models.Attribute{{Name: "site_name", Value: "<b>Carigara</b>"}}},
			{HotspotID: 2, Latitude: 11.5, Longitude: 123.5, Value: 55},
		},
	}

	html, err := Heatmap(snap, LatLon{11.35, 123.7})
	if err != nil {
		t.Fatalf("Heatmap: %v", err)
	}
	for _, want := range []string{
		"Squid abundance forecast, Feb 2024",
		"L.heatLayer",
		"Site Name",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("heatmap missing %q", want)
		}
	}
	// numbers in a script context are padded with spaces
	compact := strings.ReplaceAll(html, " ", "")
	for _, want := range []string{"setView([11.35,123.7],10)", "max:55}"} {
		if !strings.Contains(compact, want) {
			t.Errorf("heatmap missing %q", want)
		}
	}
	if strings.Contains(html, "<b>Carigara</b>") {
		t.Error("attribute values must be escaped")
	}

	if _, err := Heatmap(forecast.Snapshot{Title: "Mar 2024"}, LatLon{}); err == nil {
		t.Error("expected error for empty snapshot")
	}
}

func TestDetails(t *testing.T) {
	rows := Details(forecast.Point{HotspotID: 3, Latitude: 9.5, Longitude: 122, Value: 1.234,
		Attributes: []models.Attribute{{Name: "depth_m", Value: "40"}}})
	if len(rows) != 5 {
		t.Fatalf("rows = %v", rows)
	}
	if rows[3] != [2]string{"Abundance Value", "1.23"} || rows[4] != [2]string{"Depth M", "40"} {
		t.Errorf("rows = %v", rows)
	}
}
