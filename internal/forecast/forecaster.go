package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lox/squidcast/internal/features"
	"github.com/lox/squidcast/internal/metrics"
	"github.com/lox/squidcast/internal/model"
)

var ErrModelInvocation = errors.New("model invocation failed")

type State int

const (
	StateReady State = iota
	StateRolling
	StateDone
	StateAborted
	// StateFailed is reached when the model errors or the context ends
	// mid-rollout.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRolling:
		return "rolling"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Run is one hotspot's pass through the forecaster.
type Run struct {
	State  State
	Scaled []float64
	Series []float64
	Err    error
}

// Forecaster rolls a model forward over a hotspot's trailing window, feeding
// each prediction back in as the next step's input.
type Forecaster struct {
	model  model.Model
	target *features.Scaler
	inputs *features.ColumnScaler
	seqLen int
}

// NewForecaster builds a forecaster. inputs may be nil when the model takes
// unscaled feature vectors.
func NewForecaster(m model.Model, target *features.Scaler, inputs *features.ColumnScaler, seqLen int) *Forecaster {
	return &Forecaster{model: m, target: target, inputs: inputs, seqLen: seqLen}
}

// Forecast predicts horizon months for h. hotspotIndex is passed through to
// the model unchanged. Failures are reported on the returned Run and always
// leave Series empty.
func (f *Forecaster) Forecast(ctx context.Context, h *features.Hotspot, hotspotIndex, horizon int) *Run {
	run := &Run{Series: []float64{}}

	window, err := features.ExtractWindow(h, f.seqLen)
	if err != nil {
		run.State = StateAborted
		run.Err = err
		return run
	}
	if f.inputs != nil {
		window = window.Map(f.inputs.TransformRow)
	}
	run.State = StateReady

	if horizon <= 0 {
		run.State = StateDone
		return run
	}

	run.State = StateRolling
	run.Scaled = make([]float64, 0, horizon)
	for step := 0; step < horizon; step++ {
		if err := ctx.Err(); err != nil {
			run.State = StateFailed
			run.Err = err
			return run
		}

		start := time.Now()
		p, err := f.model.Predict(ctx, window, hotspotIndex)
		metrics.ModelLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.ModelInvocationsTotal.WithLabelValues("error").Inc()
			run.State = StateFailed
			run.Err = fmt.Errorf("%w: step %d: %w", ErrModelInvocation, step, err)
			return run
		}
		metrics.ModelInvocationsTotal.WithLabelValues("ok").Inc()

		run.Scaled = append(run.Scaled, p)
		window = window.Roll(p)
	}

	run.State = StateDone
	if len(run.Scaled) == 0 {
		return run
	}
	series, err := f.target.InverseTransform(run.Scaled)
	if err != nil {
		run.Err = fmt.Errorf("inverse transform: %w", err)
		return run
	}
	run.Series = series
	return run
}
