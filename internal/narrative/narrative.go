// Package narrative writes a short plain-language briefing for a forecast run
// using OpenAI's chat API.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/lox/squidcast/internal/forecast"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const systemPrompt = `You write briefings for small-scale squid fishers.
Given monthly abundance forecasts (kg per haul) for fishing hotspots, write
three or four sentences in plain language. Name the strongest hotspots and
months, say whether abundance rises or falls over the period, and mention
hotspots with no forecast only if there are any. Do not invent numbers.`

// maxHotspots bounds the prompt size for large reference tables.
const maxHotspots = 25

// Generator produces narratives with a chat completion model.
type Generator struct {
	client openai.Client
	model  string
}

// New reads OPENAI_API_KEY from the environment.
func New() (*Generator, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	return &Generator{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModelGPT4oMini,
	}, nil
}

// Summarize returns a narrative for res.
func (g *Generator) Summarize(ctx context.Context, res *forecast.Result) (string, error) {
	prompt := Prompt(res)
	if prompt == "" {
		return "", errors.New("nothing to summarize")
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion returned")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty completion returned")
	}
	log.Printf("narrative: run %s summarized (%d chars)", res.RunID, len(text))
	return text, nil
}

// Prompt renders the forecast as the user message. Hotspots are ordered by
// peak value so the largest stay in when the list is truncated.
func Prompt(res *forecast.Result) string {
	if res == nil || len(res.Hotspots) == 0 {
		return ""
	}

	type row struct {
		hf   forecast.HotspotForecast
		peak float64
	}
	var ok []row
	var missing []int
	for _, hf := range res.Hotspots {
		if len(hf.Series) == 0 {
			missing = append(missing, hf.HotspotID)
			continue
		}
		peak := hf.Series[0]
		for _, v := range hf.Series[1:] {
			peak = max(peak, v)
		}
		ok = append(ok, row{hf, peak})
	}
	sort.SliceStable(ok, func(i, j int) bool { return ok[i].peak > ok[j].peak })

	var b strings.Builder
	months := res.Months()
	if len(months) > 0 {
		fmt.Fprintf(&b, "Forecast months: %s to %s.\n",
			months[0].Format(forecast.MonthLabelLayout),
			months[len(months)-1].Format(forecast.MonthLabelLayout))
	}
	for i, r := range ok {
		if i == maxHotspots {
			fmt.Fprintf(&b, "(%d more hotspots omitted)\n", len(ok)-maxHotspots)
			break
		}
		vals := make([]string, len(r.hf.Series))
		for k, v := range r.hf.Series {
			vals[k] = fmt.Sprintf("%.1f", v)
		}
		fmt.Fprintf(&b, "Hotspot %d (%.4f, %.4f): %s\n",
			r.hf.HotspotID, r.hf.Latitude, r.hf.Longitude, strings.Join(vals, ", "))
	}
	if len(missing) > 0 {
		ids := make([]string, len(missing))
		for i, id := range missing {
			ids[i] = fmt.Sprint(id)
		}
		fmt.Fprintf(&b, "No forecast for hotspots: %s\n", strings.Join(ids, ", "))
	}
	return b.String()
}
