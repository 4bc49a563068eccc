package features

import (
	"errors"
	"fmt"
)

var ErrInsufficientHistory = errors.New("insufficient history")

// Window is a fixed-length run of feature vectors, oldest first.
type Window [][]float64

// ExtractWindow returns a copy of the trailing length vectors of h.
func ExtractWindow(h *Hotspot, length int) (Window, error) {
	if length < 1 {
		return nil, fmt.Errorf("window length must be positive, got %d", length)
	}
	if h == nil || h.Len() < length {
		n := 0
		if h != nil {
			n = h.Len()
		}
		return nil, fmt.Errorf("need %d records, have %d: %w", length, n, ErrInsufficientHistory)
	}
	src := h.Vectors[h.Len()-length:]
	w := make(Window, length)
	for i, row := range src {
		w[i] = append([]float64(nil), row...)
	}
	return w, nil
}

// Len is the number of rows.
func (w Window) Len() int { return len(w) }

// Last returns the newest row.
func (w Window) Last() []float64 { return w[len(w)-1] }

// Roll returns a new window with the oldest row dropped and a row derived
// from p appended. The new row is p followed by every field of the previous
// last row except its first. Rolling and ratio fields are carried unchanged.
func (w Window) Roll(p float64) Window {
	last := w.Last()
	row := make([]float64, len(last))
	row[0] = p
	copy(row[1:], last[1:])

	next := make(Window, len(w))
	copy(next, w[1:])
	next[len(w)-1] = row
	return next
}

// Map returns a window with f applied to every row.
func (w Window) Map(f func([]float64) []float64) Window {
	out := make(Window, len(w))
	for i, row := range w {
		out[i] = f(row)
	}
	return out
}
