package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/floats"
)

// LinearModel is a window regression exported as JSON weights:
//
//	y = bias + hotspot_bias[idx] + sum_t dot(weights[t], window[t])
type LinearModel struct {
	Bias        float64     `json:"bias"`
	HotspotBias []float64   `json:"hotspot_bias"`
	Weights     [][]float64 `json:"weights"`
}

// LoadLinear reads a weights file from disk.
func LoadLinear(path string) (*LinearModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open weights: %w", err)
	}
	defer f.Close()
	return ParseLinear(f)
}

// ParseLinear decodes and validates a weights document.
func ParseLinear(r io.Reader) (*LinearModel, error) {
	var m LinearModel
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode weights: %w", err)
	}
	if len(m.Weights) == 0 || len(m.Weights[0]) == 0 {
		return nil, errors.New("decode weights: empty weight matrix")
	}
	width := len(m.Weights[0])
	for i, row := range m.Weights {
		if len(row) != width {
			return nil, fmt.Errorf("decode weights: row %d has %d weights, want %d", i, len(row), width)
		}
	}
	return &m, nil
}

func (m *LinearModel) InputShape() Shape {
	return Shape{SequenceLength: len(m.Weights), Features: len(m.Weights[0])}
}

func (m *LinearModel) Predict(ctx context.Context, window [][]float64, hotspotIndex int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := checkWindow(window, m.InputShape()); err != nil {
		return 0, err
	}
	y := m.Bias
	if len(m.HotspotBias) > 0 {
		if hotspotIndex < 0 || hotspotIndex >= len(m.HotspotBias) {
			return 0, fmt.Errorf("hotspot index %d outside 0..%d", hotspotIndex, len(m.HotspotBias)-1)
		}
		y += m.HotspotBias[hotspotIndex]
	}
	for t, row := range window {
		y += floats.Dot(m.Weights[t], row)
	}
	return y, nil
}
