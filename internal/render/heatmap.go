package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/lox/squidcast/internal/forecast"
)

//go:embed templates/*
var templateFS embed.FS

var tmpl = template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))

// DefaultZoom frames a regional fishing ground.
const DefaultZoom = 10

type LatLon struct {
	Lat float64
	Lon float64
}

// CenterOf returns the midpoint of the bounding box around coords.
func CenterOf(coords []LatLon) LatLon {
	if len(coords) == 0 {
		return LatLon{}
	}
	minLat, maxLat := coords[0].Lat, coords[0].Lat
	minLon, maxLon := coords[0].Lon, coords[0].Lon
	for _, c := range coords[1:] {
		minLat, maxLat = min(minLat, c.Lat), max(maxLat, c.Lat)
		minLon, maxLon = min(minLon, c.Lon), max(maxLon, c.Lon)
	}
	return LatLon{Lat: (minLat + maxLat) / 2, Lon: (minLon + maxLon) / 2}
}

type heatPoint struct {
	Lat     float64     `json:"lat"`
	Lon     float64     `json:"lon"`
	Value   float64     `json:"value"`
	Details [][2]string `json:"details"`
}

type heatmapData struct {
	Title  string
	Center LatLon
	Zoom   int
	Max    float64
	Points []heatPoint
}

// Heatmap renders one month's snapshot as a standalone Leaflet page.
func Heatmap(snap forecast.Snapshot, center LatLon) (string, error) {
	if len(snap.Points) == 0 {
		return "", errors.New("heatmap: snapshot has no points")
	}

	data := heatmapData{
		Title:  "Squid abundance forecast, " + snap.Title,
		Center: center,
		Zoom:   DefaultZoom,
	}
	for _, p := range snap.Points {
		data.Max = max(data.Max, p.Value)
		data.Points = append(data.Points, heatPoint{
			Lat:     p.Latitude,
			Lon:     p.Longitude,
			Value:   p.Value,
			Details: Details(p),
		})
	}
	if data.Max <= 0 {
		data.Max = 1
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "heatmap.html", data); err != nil {
		return "", fmt.Errorf("render heatmap: %w", err)
	}
	return buf.String(), nil
}

// Details lists a point's popup rows: id, coordinates, value, then every
// metadata attribute in file order.
func Details(p forecast.Point) [][2]string {
	rows := [][2]string{
		{"Hotspot Id", fmt.Sprint(p.HotspotID)},
		{"Latitude", fmt.Sprint(p.Latitude)},
		{"Longitude", fmt.Sprint(p.Longitude)},
		{"Abundance Value", fmt.Sprintf("%.2f", p.Value)},
	}
	for _, a := range p.Attributes {
		rows = append(rows, [2]string{titleCase(a.Name), a.Value})
	}
	return rows
}

// titleCase turns "depth_m" into "Depth M".
func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
