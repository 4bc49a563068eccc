package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/lox/squidcast/internal/forecast"
	"github.com/lox/squidcast/internal/metrics"
	"github.com/lox/squidcast/internal/render"
)

type PredictRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// PointDetail is one row of a month's hotspot table.
type PointDetail struct {
	HotspotID      int               `json:"hotspot_id"`
	Latitude       float64           `json:"latitude"`
	Longitude      float64           `json:"longitude"`
	AbundanceValue float64           `json:"abundance_value"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}

type HotspotStatus struct {
	HotspotID int              `json:"hotspot_id"`
	Outcome   forecast.Outcome `json:"outcome"`
	Reason    string           `json:"reason,omitempty"`
}

type PredictResponse struct {
	RunID          string                   `json:"run_id"`
	Horizon        int                      `json:"horizon"`
	Heatmaps       []string                 `json:"heatmaps"`
	Graphs         map[string]string        `json:"graphs"`
	HotspotDetails map[string][]PointDetail `json:"hotspot_details"`
	Hotspots       []HotspotStatus          `json:"hotspots"`
	Narrative      string                   `json:"narrative,omitempty"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		observeRequest("bad_request")
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.engine.ForecastAll(r.Context(), nil, req.Year, time.Month(req.Month))
	switch {
	case errors.Is(err, forecast.ErrInvalidMonth), errors.Is(err, forecast.ErrHorizonTooLong):
		observeRequest("bad_request")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		observeRequest("error")
		log.Printf("server: forecast %d-%02d: %v", req.Year, req.Month, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp, err := s.buildResponse(r, res)
	if err != nil {
		observeRequest("error")
		log.Printf("server: render run %s: %v", res.RunID, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	observeRequest("ok")
	writeJSON(w, resp)
}

func (s *Server) buildResponse(r *http.Request, res *forecast.Result) (*PredictResponse, error) {
	resp := &PredictResponse{
		RunID:          res.RunID,
		Horizon:        res.Horizon,
		Heatmaps:       []string{},
		Graphs:         make(map[string]string),
		HotspotDetails: make(map[string][]PointDetail),
		Hotspots:       make([]HotspotStatus, 0, len(res.Hotspots)),
	}

	var coords []render.LatLon
	for _, h := range s.engine.Hotspots() {
		coords = append(coords, render.LatLon{Lat: h.Latitude, Lon: h.Longitude})
	}
	center := render.CenterOf(coords)

	for _, snap := range res.Snapshots() {
		html, err := render.Heatmap(snap, center)
		if err != nil {
			return nil, err
		}
		resp.Heatmaps = append(resp.Heatmaps, html)

		details := make([]PointDetail, 0, len(snap.Points))
		for _, p := range snap.Points {
			d := PointDetail{
				HotspotID:      p.HotspotID,
				Latitude:       p.Latitude,
				Longitude:      p.Longitude,
				AbundanceValue: p.Value,
			}
			if len(p.Attributes) > 0 {
				d.Attributes = make(map[string]string, len(p.Attributes))
				for _, a := range p.Attributes {
					d.Attributes[a.Name] = a.Value
				}
			}
			details = append(details, d)
		}
		resp.HotspotDetails[snap.Title] = details
	}

	months := res.Months()
	for _, hf := range res.Hotspots {
		resp.Hotspots = append(resp.Hotspots, HotspotStatus{HotspotID: hf.HotspotID, Outcome: hf.Outcome, Reason: hf.Reason})
		if len(hf.Series) == 0 {
			continue
		}
		png, err := render.Chart(hf.Series, months, hf.Latitude, hf.Longitude)
		if err != nil {
			log.Printf("server: chart for hotspot %d: %v", hf.HotspotID, err)
			continue
		}
		resp.Graphs[forecast.CoordinateKey(hf.Latitude, hf.Longitude)] = render.ChartDataURL(png)
	}

	if s.narrator != nil {
		text, err := s.narrator.Summarize(r.Context(), res)
		if err != nil {
			log.Printf("server: narrative for run %s: %v", res.RunID, err)
		} else {
			resp.Narrative = text
		}
	}
	return resp, nil
}

func (s *Server) handleAPIHotspots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.Hotspots())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cfg := s.engine.Config()
	health := map[string]any{
		"status":          "ok",
		"hotspots":        len(s.engine.Hotspots()),
		"features":        s.engine.Dataset().FeatureCount(),
		"sequence_length": cfg.SequenceLength,
		"epoch":           cfg.Epoch.Format("2006-01"),
	}

	if s.store != nil {
		runs, err := s.store.GetRecentIngestRuns(1)
		if err != nil {
			log.Printf("server: health ingest runs: %v", err)
		} else if len(runs) > 0 {
			last := map[string]any{
				"kind":       runs[0].Kind,
				"source":     runs[0].Source,
				"started_at": runs[0].StartedAt,
				"success":    runs[0].Success,
			}
			if runs[0].ErrorMessage.Valid {
				last["error"] = runs[0].ErrorMessage.String
			}
			health["last_ingest"] = last
		}
	}
	writeJSON(w, health)
}

// writeJSON encodes before writing so an unencodable value becomes a 500
// rather than a truncated 200.
func writeJSON(w http.ResponseWriter, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
		http.Error(w, "encode response: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(buf.Bytes())
}

func observeRequest(status string) {
	metrics.ForecastRequestsTotal.WithLabelValues(status).Inc()
}
