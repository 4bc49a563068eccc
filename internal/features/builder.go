// Package features turns raw historical records into per-hotspot feature
// matrices, fits scalers and cuts the trailing windows the model is seeded
// with.
package features

import (
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/lox/squidcast/internal/config"
	"github.com/lox/squidcast/internal/models"
)

// MinHotspotRecords is the fewest surviving records a hotspot needs to stay
// in the active set.
const MinHotspotRecords = 2

// Hotspot is one location's engineered history, oldest first.
type Hotspot struct {
	ID        int
	Latitude  float64
	Longitude float64
	Months    []time.Time
	Targets   []float64
	Vectors   [][]float64
}

func (h *Hotspot) Len() int { return len(h.Vectors) }

// Dataset is the immutable output of Build.
type Dataset struct {
	columns  []config.Column
	hotspots []*Hotspot
	byCoord  map[[2]float64]*Hotspot
}

func (d *Dataset) Columns() []config.Column { return d.columns }

func (d *Dataset) FeatureCount() int { return len(d.columns) }

// Hotspots returns hotspots ordered by id.
func (d *Dataset) Hotspots() []*Hotspot { return d.hotspots }

// Hotspot returns the hotspot with the given id, or nil.
func (d *Dataset) Hotspot(id int) *Hotspot {
	if id < 1 || id > len(d.hotspots) {
		return nil
	}
	return d.hotspots[id-1]
}

// HotspotAt returns the hotspot at exactly (lat, lon), or nil.
func (d *Dataset) HotspotAt(lat, lon float64) *Hotspot {
	return d.byCoord[[2]float64{lat, lon}]
}

// IDs returns every hotspot id in ascending order.
func (d *Dataset) IDs() []int {
	ids := make([]int, len(d.hotspots))
	for i, h := range d.hotspots {
		ids[i] = h.ID
	}
	return ids
}

// Targets returns every surviving target value across all hotspots.
func (d *Dataset) Targets() []float64 {
	var out []float64
	for _, h := range d.hotspots {
		out = append(out, h.Targets...)
	}
	return out
}

// Rows returns every surviving feature vector across all hotspots.
func (d *Dataset) Rows() [][]float64 {
	var out [][]float64
	for _, h := range d.hotspots {
		out = append(out, h.Vectors...)
	}
	return out
}

// series is one hotspot's filled raw variables before derivation.
type series struct {
	lat, lon float64
	months   []time.Time
	values   map[string][]float64
}

// Build derives lag, rolling and ratio features per hotspot and drops
// records and hotspots that cannot form a complete feature vector.
func Build(cfg config.Forecast, records []models.Record) (*Dataset, error) {
	cols, err := cfg.Columns()
	if err != nil {
		return nil, fmt.Errorf("build dataset: %w", err)
	}

	groups := groupRecords(records)

	var kept []*Hotspot
	dropped := 0
	for _, s := range groups {
		for _, v := range config.Variables {
			fillMissing(s.values[v])
		}
		h := deriveHotspot(cfg, cols, s)
		if h.Len() < MinHotspotRecords {
			dropped++
			continue
		}
		kept = append(kept, h)
	}
	if dropped > 0 {
		log.Printf("features: dropped %d hotspots with fewer than %d usable records", dropped, MinHotspotRecords)
	}

	ds := &Dataset{
		columns:  cols,
		hotspots: kept,
		byCoord:  make(map[[2]float64]*Hotspot, len(kept)),
	}
	for i, h := range kept {
		h.ID = i + 1
		ds.byCoord[[2]float64{h.Latitude, h.Longitude}] = h
	}
	return ds, nil
}

// groupRecords groups by exact coordinate, sorts each group chronologically
// and orders groups by (latitude, longitude).
func groupRecords(records []models.Record) []*series {
	idx := make(map[[2]float64]*series)
	var groups []*series
	for _, r := range records {
		key := [2]float64{r.Latitude, r.Longitude}
		s, ok := idx[key]
		if !ok {
			s = &series{lat: r.Latitude, lon: r.Longitude, values: make(map[string][]float64)}
			idx[key] = s
			groups = append(groups, s)
		}
		s.months = append(s.months, r.Month)
		s.values[config.VarAbundance] = append(s.values[config.VarAbundance], nullValue(r.Abundance.Float64, r.Abundance.Valid))
		s.values[config.VarSST] = append(s.values[config.VarSST], nullValue(r.SST.Float64, r.SST.Valid))
		s.values[config.VarChl] = append(s.values[config.VarChl], nullValue(r.Chl.Float64, r.Chl.Valid))
		s.values[config.VarSSH] = append(s.values[config.VarSSH], nullValue(r.SSH.Float64, r.SSH.Valid))
	}

	for _, s := range groups {
		order := make([]int, len(s.months))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return s.months[order[a]].Before(s.months[order[b]])
		})
		months := make([]time.Time, len(order))
		for i, o := range order {
			months[i] = s.months[o]
		}
		s.months = months
		for name, vals := range s.values {
			sorted := make([]float64, len(order))
			for i, o := range order {
				sorted[i] = vals[o]
			}
			s.values[name] = sorted
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].lat != groups[j].lat {
			return groups[i].lat < groups[j].lat
		}
		return groups[i].lon < groups[j].lon
	})
	return groups
}

func nullValue(v float64, valid bool) float64 {
	if !valid || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

// fillMissing interpolates linearly between valid observations along the
// record index, then forward-fills and back-fills the edges. A series with
// no valid value is left untouched.
func fillMissing(vals []float64) {
	prev := -1
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			step := (v - vals[prev]) / float64(i-prev)
			for k := prev + 1; k < i; k++ {
				vals[k] = vals[prev] + step*float64(k-prev)
			}
		}
		prev = i
	}
	if prev < 0 {
		return
	}
	for i := prev + 1; i < len(vals); i++ {
		vals[i] = vals[prev]
	}
	first := 0
	for math.IsNaN(vals[first]) {
		first++
	}
	for i := 0; i < first; i++ {
		vals[i] = vals[first]
	}
}

func deriveHotspot(cfg config.Forecast, cols []config.Column, s *series) *Hotspot {
	h := &Hotspot{Latitude: s.lat, Longitude: s.lon}

	start := cfg.LagDepth
	if cfg.RollingWindow-1 > start {
		start = cfg.RollingWindow - 1
	}

rows:
	for i := start; i < len(s.months); i++ {
		for _, v := range config.Variables {
			if math.IsNaN(s.values[v][i]) {
				continue rows
			}
		}
		if cfg.Ratios {
			for _, p := range config.RatioPairs() {
				if s.values[p[1]][i] == 0 {
					continue rows
				}
			}
		}
		vec := make([]float64, len(cols))
		for j, c := range cols {
			x := columnValue(cfg, c, s.values, i)
			if math.IsNaN(x) || math.IsInf(x, 0) {
				continue rows
			}
			vec[j] = x
		}
		h.Months = append(h.Months, s.months[i])
		h.Targets = append(h.Targets, s.values[config.VarAbundance][i])
		h.Vectors = append(h.Vectors, vec)
	}
	return h
}

// columnValue computes column c at record i. Undefined values are NaN.
func columnValue(cfg config.Forecast, c config.Column, values map[string][]float64, i int) float64 {
	v := values[c.Var]
	switch c.Kind {
	case config.KindRaw:
		return v[i]
	case config.KindLag:
		if i-c.Lag < 0 {
			return math.NaN()
		}
		return v[i-c.Lag]
	case config.KindRollingMean, config.KindRollingStd:
		w := cfg.RollingWindow
		if i-w+1 < 0 {
			return math.NaN()
		}
		mean, std := stat.MeanStdDev(v[i-w+1:i+1], nil)
		if c.Kind == config.KindRollingMean {
			return mean
		}
		return std
	case config.KindRatio:
		den := values[c.Other][i]
		if den == 0 {
			return math.NaN()
		}
		return v[i] / den
	}
	return math.NaN()
}
