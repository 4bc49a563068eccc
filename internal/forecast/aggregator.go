package forecast

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lox/squidcast/internal/features"
	"github.com/lox/squidcast/internal/metrics"
	"github.com/lox/squidcast/internal/models"
)

type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeEmpty  Outcome = "empty"
	OutcomeFailed Outcome = "failed"
)

// HotspotForecast is one hotspot's entry in a Result.
type HotspotForecast struct {
	HotspotID  int                `json:"hotspot_id"`
	Latitude   float64            `json:"latitude"`
	Longitude  float64            `json:"longitude"`
	Attributes []models.Attribute `json:"attributes,omitempty"`
	Series     []float64          `json:"series"`
	Outcome    Outcome            `json:"outcome"`
	Reason     string             `json:"reason,omitempty"`
}

// Result is the outcome of one ForecastAll call.
type Result struct {
	RunID    string            `json:"run_id"`
	Epoch    time.Time         `json:"epoch"`
	Horizon  int               `json:"horizon"`
	Hotspots []HotspotForecast `json:"hotspots"`
}

// ForecastAll forecasts every requested hotspot up to (year, month). A nil
// ids slice means every known hotspot. Per-hotspot failures are recorded on
// the result and never fail the batch.
func (e *Engine) ForecastAll(ctx context.Context, ids []int, year int, month time.Month) (*Result, error) {
	horizon, err := checkHorizon(e.cfg.Epoch, e.cfg.MaxHorizon, year, month)
	if err != nil {
		return nil, err
	}

	if ids == nil {
		for _, h := range e.Hotspots() {
			ids = append(ids, h.HotspotID)
		}
	}

	result := &Result{
		RunID:    uuid.NewString(),
		Epoch:    e.cfg.Epoch,
		Horizon:  horizon,
		Hotspots: make([]HotspotForecast, 0, len(ids)),
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hf := e.forecastOne(ctx, id, horizon)
		metrics.HotspotForecastsTotal.WithLabelValues(string(hf.Outcome)).Inc()
		result.Hotspots = append(result.Hotspots, hf)
	}
	return result, nil
}

func (e *Engine) forecastOne(ctx context.Context, id, horizon int) HotspotForecast {
	hf := HotspotForecast{HotspotID: id, Series: []float64{}}

	h, reason := e.resolve(id, &hf)
	if h == nil {
		hf.Outcome = OutcomeEmpty
		hf.Reason = reason
		return hf
	}

	run := e.forecaster.Forecast(ctx, h, id-1, horizon)
	hf.Series = run.Series

	switch {
	case run.State == StateFailed:
		log.Printf("forecast: hotspot %d: %v", id, run.Err)
		hf.Outcome = OutcomeFailed
		hf.Reason = run.Err.Error()
	case errors.Is(run.Err, features.ErrInsufficientHistory):
		hf.Outcome = OutcomeEmpty
		hf.Reason = run.Err.Error()
	case run.Err != nil:
		log.Printf("forecast: hotspot %d: %v", id, run.Err)
		hf.Outcome = OutcomeEmpty
		hf.Reason = run.Err.Error()
	case len(run.Series) == 0:
		hf.Outcome = OutcomeEmpty
		hf.Reason = "requested month is not after the forecast epoch"
	default:
		hf.Outcome = OutcomeOK
	}
	return hf
}

// resolve maps a hotspot id to its engineered history, filling coordinates
// and attributes on hf. It returns a reason when there is none.
func (e *Engine) resolve(id int, hf *HotspotForecast) (*features.Hotspot, string) {
	if e.useMetadata() {
		meta, ok := e.metaByID[id]
		if !ok {
			return nil, "unknown hotspot id"
		}
		hf.Latitude, hf.Longitude = meta.Latitude, meta.Longitude
		hf.Attributes = meta.Attributes
		h := e.dataset.HotspotAt(meta.Latitude, meta.Longitude)
		if h == nil {
			return nil, "no usable history at this location"
		}
		return h, ""
	}

	h := e.dataset.Hotspot(id)
	if h == nil {
		return nil, "unknown hotspot id"
	}
	hf.Latitude, hf.Longitude = h.Latitude, h.Longitude
	if meta, ok := e.metaByCoord[[2]float64{h.Latitude, h.Longitude}]; ok {
		hf.Attributes = meta.Attributes
	}
	return h, ""
}

// Month returns the calendar month of step k.
func (r *Result) Month(k int) time.Time {
	return StepMonth(r.Epoch, k)
}

// Months returns the calendar month of every step.
func (r *Result) Months() []time.Time {
	out := make([]time.Time, 0, max(r.Horizon, 0))
	for k := 0; k < r.Horizon; k++ {
		out = append(out, r.Month(k))
	}
	return out
}

// Point is one hotspot's value in a Snapshot.
type Point struct {
	HotspotID  int                `json:"hotspot_id"`
	Latitude   float64            `json:"latitude"`
	Longitude  float64            `json:"longitude"`
	Value      float64            `json:"value"`
	Attributes []models.Attribute `json:"attributes,omitempty"`
}

// Snapshot is every hotspot's value for one forecast month.
type Snapshot struct {
	Offset int       `json:"offset"`
	Month  time.Time `json:"month"`
	Title  string    `json:"title"`
	Points []Point   `json:"points"`
}

// Snapshots groups values by month offset. Months where no hotspot has a
// value are omitted.
func (r *Result) Snapshots() []Snapshot {
	var out []Snapshot
	for k := 0; k < r.Horizon; k++ {
		var points []Point
		for _, hf := range r.Hotspots {
			if k >= len(hf.Series) {
				continue
			}
			points = append(points, Point{
				HotspotID:  hf.HotspotID,
				Latitude:   hf.Latitude,
				Longitude:  hf.Longitude,
				Value:      hf.Series[k],
				Attributes: hf.Attributes,
			})
		}
		if len(points) == 0 {
			continue
		}
		m := r.Month(k)
		out = append(out, Snapshot{Offset: k, Month: m, Title: m.Format(MonthLabelLayout), Points: points})
	}
	return out
}

// SeriesByCoordinate keys every non-empty series by CoordinateKey.
func (r *Result) SeriesByCoordinate() map[string][]float64 {
	out := make(map[string][]float64)
	for _, hf := range r.Hotspots {
		if len(hf.Series) == 0 {
			continue
		}
		out[CoordinateKey(hf.Latitude, hf.Longitude)] = hf.Series
	}
	return out
}

// CoordinateKey formats a location as "lat,lon".
func CoordinateKey(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
}

// Counts tallies outcomes.
func (r *Result) Counts() map[Outcome]int {
	out := make(map[Outcome]int)
	for _, hf := range r.Hotspots {
		out[hf.Outcome]++
	}
	return out
}
