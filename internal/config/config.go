// Package config holds the forecasting configuration shared by the feature
// builder, the model shape check and the forecaster. The feature column list
// and sequence length are a contract with the trained model: changing either
// invalidates its weights.
package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	HotspotSourceMetadata = "metadata"
	HotspotSourceDataset  = "dataset"
)

// DefaultFeatures is the column order the deployed model was trained on.
var DefaultFeatures = []string{
	"sst", "chl", "ssh",
	"abundance_lag1", "abundance_lag2", "abundance_lag3", "abundance_lag4", "abundance_lag5", "abundance_lag6",
	"sst_lag1", "sst_lag2", "sst_lag3", "sst_lag4", "sst_lag5", "sst_lag6",
	"chl_lag1", "chl_lag2", "chl_lag3", "chl_lag4", "chl_lag5", "chl_lag6",
	"ssh_lag1", "ssh_lag2", "ssh_lag3", "ssh_lag4", "ssh_lag5", "ssh_lag6",
	"sst_rolling3", "chl_rolling3", "ssh_rolling3",
}

// Forecast enumerates everything that varied between deployments.
type Forecast struct {
	SequenceLength int
	Features       []string
	LagDepth       int
	RollingWindow  int
	Ratios         bool // derive pairwise covariate ratios
	ScaleFeatures  bool // min-max scale each feature column before model input
	Epoch          time.Time
	MaxHorizon     int
	HotspotSource  string
}

func Default() Forecast {
	return Forecast{
		SequenceLength: 10,
		Features:       append([]string(nil), DefaultFeatures...),
		LagDepth:       6,
		RollingWindow:  3,
		Epoch:          time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC),
		MaxHorizon:     120,
		HotspotSource:  HotspotSourceMetadata,
	}
}

// ParseEpoch parses a "YYYY-MM" month into the first day of that month, UTC.
func ParseEpoch(s string) (time.Time, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse epoch %q: %w", s, err)
	}
	return t, nil
}

// Validate checks the configuration and every feature column name.
func (c Forecast) Validate() error {
	var errs []error
	if c.SequenceLength < 1 {
		errs = append(errs, fmt.Errorf("sequence length must be positive, got %d", c.SequenceLength))
	}
	if c.LagDepth < 1 {
		errs = append(errs, fmt.Errorf("lag depth must be positive, got %d", c.LagDepth))
	}
	if c.RollingWindow < 2 {
		errs = append(errs, fmt.Errorf("rolling window must be at least 2, got %d", c.RollingWindow))
	}
	if c.MaxHorizon < 1 {
		errs = append(errs, fmt.Errorf("max horizon must be positive, got %d", c.MaxHorizon))
	}
	if c.Epoch.IsZero() {
		errs = append(errs, errors.New("epoch is required"))
	}
	switch c.HotspotSource {
	case HotspotSourceMetadata, HotspotSourceDataset:
	default:
		errs = append(errs, fmt.Errorf("unknown hotspot source %q", c.HotspotSource))
	}
	if len(c.Features) == 0 {
		errs = append(errs, errors.New("at least one feature column is required"))
	}

	seen := make(map[string]bool, len(c.Features))
	for _, name := range c.Features {
		if seen[name] {
			errs = append(errs, fmt.Errorf("duplicate feature column %q", name))
			continue
		}
		seen[name] = true
		if _, err := c.ParseColumn(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
