// Package forecast runs the autoregressive rollout for every hotspot and
// shapes the results for rendering.
package forecast

import (
	"fmt"
	"log"

	"github.com/lox/squidcast/internal/config"
	"github.com/lox/squidcast/internal/features"
	"github.com/lox/squidcast/internal/model"
	"github.com/lox/squidcast/internal/models"
)

// Engine is built once at startup and shared read-only by every request.
type Engine struct {
	cfg         config.Forecast
	dataset     *features.Dataset
	target      *features.Scaler
	forecaster  *Forecaster
	meta        []models.HotspotMeta
	metaByID    map[int]models.HotspotMeta
	metaByCoord map[[2]float64]models.HotspotMeta
}

// NewEngine engineers features from records, fits the scalers and checks
// that m accepts the resulting window shape.
func NewEngine(cfg config.Forecast, records []models.Record, meta []models.HotspotMeta, m model.Model) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid forecast config: %w", err)
	}

	ds, err := features.Build(cfg, records)
	if err != nil {
		return nil, err
	}

	target, err := features.FitScaler(ds.Targets())
	if err != nil {
		return nil, fmt.Errorf("fit target scaler: %w", err)
	}

	var inputs *features.ColumnScaler
	if cfg.ScaleFeatures {
		inputs, err = features.FitColumnScaler(ds.Rows())
		if err != nil {
			return nil, fmt.Errorf("fit feature scaler: %w", err)
		}
	}

	if err := model.CheckShape(m, cfg.SequenceLength, ds.FeatureCount()); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:         cfg,
		dataset:     ds,
		target:      target,
		forecaster:  NewForecaster(m, target, inputs, cfg.SequenceLength),
		meta:        meta,
		metaByID:    make(map[int]models.HotspotMeta, len(meta)),
		metaByCoord: make(map[[2]float64]models.HotspotMeta, len(meta)),
	}
	for _, h := range meta {
		e.metaByID[h.HotspotID] = h
		e.metaByCoord[[2]float64{h.Latitude, h.Longitude}] = h
	}

	log.Printf("forecast: engine ready: %d hotspots, %d features, sequence length %d, target range [%g, %g]",
		len(ds.Hotspots()), ds.FeatureCount(), cfg.SequenceLength, target.Min(), target.Max())
	return e, nil
}

func (e *Engine) Config() config.Forecast { return e.cfg }

func (e *Engine) Dataset() *features.Dataset { return e.dataset }

func (e *Engine) TargetScaler() *features.Scaler { return e.target }

// Hotspots lists the known hotspots. Without a metadata table it is derived
// from the dataset.
func (e *Engine) Hotspots() []models.HotspotMeta {
	if e.useMetadata() {
		return e.meta
	}
	out := make([]models.HotspotMeta, 0, len(e.dataset.Hotspots()))
	for _, h := range e.dataset.Hotspots() {
		m := models.HotspotMeta{HotspotID: h.ID, Latitude: h.Latitude, Longitude: h.Longitude}
		if known, ok := e.metaByCoord[[2]float64{h.Latitude, h.Longitude}]; ok {
			m.Attributes = known.Attributes
		}
		out = append(out, m)
	}
	return out
}

func (e *Engine) useMetadata() bool {
	return e.cfg.HotspotSource == config.HotspotSourceMetadata && len(e.meta) > 0
}
