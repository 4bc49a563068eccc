package features

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrDegenerateRange = errors.New("degenerate scaler range")
	ErrEmptyInput      = errors.New("empty input")
	ErrNonFinite       = errors.New("non-finite value")
)

// Scaler is a fitted min-max normalisation. It is immutable after FitScaler.
type Scaler struct {
	min float64
	max float64
}

// FitScaler computes the min and max of values.
func FitScaler(values []float64) (*Scaler, error) {
	if len(values) == 0 {
		return nil, ErrEmptyInput
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("fit scaler: %w", ErrNonFinite)
		}
	}
	lo, hi := floats.Min(values), floats.Max(values)
	if lo == hi {
		return nil, fmt.Errorf("fit scaler: min = max = %g: %w", lo, ErrDegenerateRange)
	}
	return &Scaler{min: lo, max: hi}, nil
}

func (s *Scaler) Min() float64 { return s.min }
func (s *Scaler) Max() float64 { return s.max }

// Transform maps x into the fitted range. Values outside the fit range map
// outside [0,1].
func (s *Scaler) Transform(x float64) float64 {
	return (x - s.min) / (s.max - s.min)
}

func (s *Scaler) TransformVector(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = s.Transform(x)
	}
	return out
}

// Inverse undoes Transform for a single value.
func (s *Scaler) Inverse(y float64) float64 {
	return y*(s.max-s.min) + s.min
}

// InverseTransform converts scaled values back to physical units. A value
// that is non-finite before or after conversion fails the whole slice.
func (s *Scaler) InverseTransform(scaled []float64) ([]float64, error) {
	if len(scaled) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([]float64, len(scaled))
	for i, y := range scaled {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, fmt.Errorf("inverse transform index %d: %w", i, ErrNonFinite)
		}
		out[i] = s.Inverse(y)
		if math.IsInf(out[i], 0) {
			return nil, fmt.Errorf("inverse transform index %d overflows: %w", i, ErrNonFinite)
		}
	}
	return out, nil
}

// ColumnScaler holds one Scaler per feature column. Columns whose fitted
// range is degenerate are passed through unchanged.
type ColumnScaler struct {
	columns []*Scaler
}

// FitColumnScaler fits each column of rows independently.
func FitColumnScaler(rows [][]float64) (*ColumnScaler, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyInput
	}
	width := len(rows[0])
	cs := &ColumnScaler{columns: make([]*Scaler, width)}
	col := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i, row := range rows {
			if len(row) != width {
				return nil, fmt.Errorf("fit column scaler: row %d has %d columns, want %d", i, len(row), width)
			}
			col[i] = row[j]
		}
		s, err := FitScaler(col)
		switch {
		case errors.Is(err, ErrDegenerateRange):
			// pass-through
		case err != nil:
			return nil, fmt.Errorf("fit column %d: %w", j, err)
		default:
			cs.columns[j] = s
		}
	}
	return cs, nil
}

func (cs *ColumnScaler) Width() int { return len(cs.columns) }

// TransformRow returns a scaled copy of row.
func (cs *ColumnScaler) TransformRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, x := range row {
		if j < len(cs.columns) && cs.columns[j] != nil {
			out[j] = cs.columns[j].Transform(x)
		} else {
			out[j] = x
		}
	}
	return out
}

// InverseRow undoes TransformRow.
func (cs *ColumnScaler) InverseRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, y := range row {
		if j < len(cs.columns) && cs.columns[j] != nil {
			out[j] = cs.columns[j].Inverse(y)
		} else {
			out[j] = y
		}
	}
	return out
}
