package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
)

const (
	DefaultSequenceInput = "sequence"
	DefaultHotspotInput  = "hotspot"

	DefaultServingTimeout = 30 * time.Second
)

// ServingClient calls a TensorFlow Serving style REST endpoint.
type ServingClient struct {
	baseURL       string
	name          string
	sequenceInput string
	hotspotInput  string
	client        *http.Client
	shape         Shape

	initialInterval time.Duration
	maxElapsed      time.Duration
}

type ServingOption func(*ServingClient)

// WithInputNames overrides the signature input names.
func WithInputNames(sequence, hotspot string) ServingOption {
	return func(c *ServingClient) {
		c.sequenceInput = sequence
		c.hotspotInput = hotspot
	}
}

func WithHTTPClient(hc *http.Client) ServingOption {
	return func(c *ServingClient) { c.client = hc }
}

// NewServingClient connects to the model server and reads the model's input
// shape from its metadata.
func NewServingClient(ctx context.Context, baseURL, name string, opts ...ServingOption) (*ServingClient, error) {
	c := &ServingClient{
		baseURL:         strings.TrimRight(baseURL, "/"),
		name:            name,
		sequenceInput:   DefaultSequenceInput,
		hotspotInput:    DefaultHotspotInput,
		client:          &http.Client{Timeout: DefaultServingTimeout},
		initialInterval: 500 * time.Millisecond,
		maxElapsed:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	shape, err := c.fetchShape(ctx)
	if err != nil {
		return nil, err
	}
	c.shape = shape
	return c, nil
}

func (c *ServingClient) InputShape() Shape { return c.shape }

func (c *ServingClient) fetchShape(ctx context.Context) (Shape, error) {
	url := fmt.Sprintf("%s/v1/models/%s/metadata", c.baseURL, c.name)
	body, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Shape{}, fmt.Errorf("fetch model metadata: %w", err)
	}

	inputs := gjson.GetBytes(body, "metadata.signature_def.signature_def.serving_default.inputs")
	if !inputs.Exists() {
		return Shape{}, fmt.Errorf("fetch model metadata: no serving_default signature")
	}
	dims := inputs.Get(c.sequenceInput + ".tensor_shape.dim.#.size")
	if !dims.Exists() {
		return Shape{}, fmt.Errorf("fetch model metadata: input %q not found", c.sequenceInput)
	}

	sizes := dims.Array()
	if len(sizes) != 3 {
		return Shape{}, fmt.Errorf("fetch model metadata: input %q has rank %d, want 3", c.sequenceInput, len(sizes))
	}
	var shape Shape
	// dim sizes are strings and -1 marks a free dimension
	if n, err := strconv.Atoi(sizes[1].String()); err == nil && n > 0 {
		shape.SequenceLength = n
	}
	if n, err := strconv.Atoi(sizes[2].String()); err == nil && n > 0 {
		shape.Features = n
	}
	return shape, nil
}

type predictRequest struct {
	Inputs map[string]any `json:"inputs"`
}

func (c *ServingClient) Predict(ctx context.Context, window [][]float64, hotspotIndex int) (float64, error) {
	if err := checkWindow(window, c.shape); err != nil {
		return 0, err
	}

	payload, err := json.Marshal(predictRequest{Inputs: map[string]any{
		c.sequenceInput: [][][]float64{window},
		c.hotspotInput:  [][]int{{hotspotIndex}},
	}})
	if err != nil {
		return 0, fmt.Errorf("marshal predict request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/models/%s:predict", c.baseURL, c.name)
	body, err := c.do(ctx, http.MethodPost, url, payload)
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}

	outputs := gjson.GetBytes(body, "outputs")
	if outputs.IsObject() {
		var first gjson.Result
		outputs.ForEach(func(_, v gjson.Result) bool {
			first = v
			return false
		})
		outputs = first
	}
	v, ok := firstNumber(outputs)
	if !ok {
		return 0, fmt.Errorf("predict: no numeric output in response")
	}
	return v, nil
}

// firstNumber descends through nested arrays to the first scalar.
func firstNumber(r gjson.Result) (float64, bool) {
	for r.IsArray() {
		arr := r.Array()
		if len(arr) == 0 {
			return 0, false
		}
		r = arr[0]
	}
	if r.Type != gjson.Number {
		return 0, false
	}
	return r.Float(), true
}

func (c *ServingClient) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var body []byte
	operation := func() error {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return backoff.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			return fmt.Errorf("model server busy: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialInterval
	bo.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}
