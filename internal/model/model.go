// Package model is the inference boundary. A Model takes a fixed-length
// window of feature vectors plus a zero-based hotspot index and returns one
// prediction in scaled target units.
package model

import (
	"context"
	"errors"
	"fmt"
)

var ErrShapeMismatch = errors.New("model input shape mismatch")

// Shape is the input a model was trained on. Zero means the dimension is not
// fixed by the model.
type Shape struct {
	SequenceLength int `json:"sequence_length"`
	Features       int `json:"features"`
}

func (s Shape) String() string {
	return fmt.Sprintf("(%s, %s)", dim(s.SequenceLength), dim(s.Features))
}

func dim(n int) string {
	if n <= 0 {
		return "?"
	}
	return fmt.Sprint(n)
}

type Model interface {
	Predict(ctx context.Context, window [][]float64, hotspotIndex int) (float64, error)
	InputShape() Shape
}

// CheckShape fails when m was trained on a different window shape than the
// feature builder produces.
func CheckShape(m Model, seqLen, features int) error {
	got := m.InputShape()
	if got.SequenceLength > 0 && got.SequenceLength != seqLen {
		return fmt.Errorf("%w: model expects %s, features produce (%d, %d)", ErrShapeMismatch, got, seqLen, features)
	}
	if got.Features > 0 && got.Features != features {
		return fmt.Errorf("%w: model expects %s, features produce (%d, %d)", ErrShapeMismatch, got, seqLen, features)
	}
	return nil
}

func checkWindow(window [][]float64, shape Shape) error {
	if shape.SequenceLength > 0 && len(window) != shape.SequenceLength {
		return fmt.Errorf("%w: window has %d rows, want %d", ErrShapeMismatch, len(window), shape.SequenceLength)
	}
	for i, row := range window {
		if shape.Features > 0 && len(row) != shape.Features {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrShapeMismatch, i, len(row), shape.Features)
		}
	}
	return nil
}
