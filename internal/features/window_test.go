package features

import (
	"errors"
	"testing"
)

func hotspotWithRows(n, width int) *Hotspot {
	h := &Hotspot{ID: 1}
	for i := 0; i < n; i++ {
		row := make([]float64, width)
		for j := range row {
			row[j] = float64(i*10 + j)
		}
		h.Vectors = append(h.Vectors, row)
		h.Targets = append(h.Targets, float64(i))
	}
	return h
}

func TestExtractWindow(t *testing.T) {
	tests := []struct {
		name    string
		rows    int
		length  int
		wantErr bool
	}{
		{"exact", 10, 10, false},
		{"trailing", 14, 10, false},
		{"short", 9, 10, true},
		{"empty", 0, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := hotspotWithRows(tt.rows, 3)
			w, err := ExtractWindow(h, tt.length)
			if tt.wantErr {
				if !errors.Is(err, ErrInsufficientHistory) {
					t.Fatalf("err = %v, want ErrInsufficientHistory", err)
				}
				if w != nil {
					t.Errorf("expected nil window, got %d rows", w.Len())
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractWindow: %v", err)
			}
			if w.Len() != tt.length {
				t.Fatalf("Len = %d, want %d", w.Len(), tt.length)
			}
			if w.Last()[0] != float64((tt.rows-1)*10) {
				t.Errorf("last row = %v, want newest record", w.Last())
			}
		})
	}
}

func TestExtractWindow_IsCopy(t *testing.T) {
	h := hotspotWithRows(5, 2)
	w, err := ExtractWindow(h, 3)
	if err != nil {
		t.Fatalf("ExtractWindow: %v", err)
	}
	w[0][0] = -1
	if h.Vectors[2][0] == -1 {
		t.Error("window shares storage with hotspot")
	}
}

func TestWindowRoll(t *testing.T) {
	h := hotspotWithRows(4, 4)
	w, _ := ExtractWindow(h, 3)

	next := w.Roll(0.42)
	if next.Len() != 3 {
		t.Fatalf("Len after roll = %d, want 3", next.Len())
	}
	want := []float64{0.42, 31, 32, 33}
	for i, v := range want {
		if next.Last()[i] != v {
			t.Errorf("new row[%d] = %v, want %v", i, next.Last()[i], v)
		}
	}
	if next[0][0] != 20 {
		t.Errorf("oldest row = %v, want record 2", next[0])
	}
	if w.Last()[0] != 30 {
		t.Error("Roll mutated the receiver")
	}

	for i := 0; i < 25; i++ {
		next = next.Roll(float64(i))
		if next.Len() != 3 {
			t.Fatalf("step %d: Len = %d, want 3", i, next.Len())
		}
	}
}
