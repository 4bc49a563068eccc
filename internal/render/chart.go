// Package render draws forecast output for the browser: PNG line charts per
// hotspot and Leaflet heat maps per month.
package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	ChartWidth  = 640
	ChartHeight = 360

	marginLeft   = 64
	marginRight  = 24
	marginTop    = 36
	marginBottom = 44
	yTicks       = 5
)

var (
	colBackground = color.RGBA{255, 255, 255, 255}
	colGrid       = color.RGBA{225, 228, 232, 255}
	colAxis       = color.RGBA{90, 96, 105, 255}
	colText       = color.RGBA{40, 44, 52, 255}
	colLine       = color.RGBA{31, 119, 180, 255}
)

// Chart plots a forecast series against its months as a PNG.
func Chart(series []float64, months []time.Time, lat, lon float64) ([]byte, error) {
	if len(series) == 0 {
		return nil, errors.New("chart: empty series")
	}
	if len(months) < len(series) {
		return nil, fmt.Errorf("chart: %d months for %d values", len(months), len(series))
	}

	img := image.NewRGBA(image.Rect(0, 0, ChartWidth, ChartHeight))
	fill(img, colBackground)

	lo, hi := series[0], series[0]
	for _, v := range series {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		lo, hi = lo-1, hi+1
	}
	pad := (hi - lo) * 0.1
	lo, hi = lo-pad, hi+pad

	plotW := ChartWidth - marginLeft - marginRight
	plotH := ChartHeight - marginTop - marginBottom
	xAt := func(i int) int {
		if len(series) == 1 {
			return marginLeft + plotW/2
		}
		return marginLeft + i*plotW/(len(series)-1)
	}
	yAt := func(v float64) int {
		return marginTop + int(math.Round((hi-v)/(hi-lo)*float64(plotH)))
	}

	for t := 0; t <= yTicks; t++ {
		v := lo + (hi-lo)*float64(t)/yTicks
		y := yAt(v)
		hline(img, marginLeft, ChartWidth-marginRight, y, colGrid)
		label := fmt.Sprintf("%.1f", v)
		drawText(img, label, marginLeft-8-textWidth(label), y+4, colText)
	}

	hline(img, marginLeft, ChartWidth-marginRight, marginTop+plotH, colAxis)
	vline(img, marginLeft, marginTop, marginTop+plotH, colAxis)

	step := max(1, (len(series)+5)/6)
	for i := 0; i < len(series); i += step {
		label := months[i].Format("Jan 06")
		x := xAt(i)
		vline(img, x, marginTop+plotH, marginTop+plotH+4, colAxis)
		drawText(img, label, x-textWidth(label)/2, marginTop+plotH+18, colText)
	}

	for i := 1; i < len(series); i++ {
		line(img, xAt(i-1), yAt(series[i-1]), xAt(i), yAt(series[i]), colLine)
	}
	for i, v := range series {
		dot(img, xAt(i), yAt(v), colLine)
	}

	title := fmt.Sprintf("Forecast abundance at (%.4f, %.4f)", lat, lon)
	drawText(img, title, (ChartWidth-textWidth(title))/2, 22, colText)
	drawText(img, "kg", 8, marginTop-10, colText)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

// ChartDataURL embeds PNG bytes in a data URL.
func ChartDataURL(pngData []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)
}

func fill(img *image.RGBA, c color.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func hline(img *image.RGBA, x0, x1, y int, c color.RGBA) {
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y, c)
	}
}

func vline(img *image.RGBA, x, y0, y1 int, c color.RGBA) {
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x, y, c)
	}
}

// line draws a two pixel wide Bresenham line.
func line(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.SetRGBA(x0, y0, c)
		img.SetRGBA(x0, y0+1, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func dot(img *image.RGBA, x, y int, c color.RGBA) {
	for dy := -3; dy <= 3; dy++ {
		for dx := -3; dx <= 3; dx++ {
			if dx*dx+dy*dy <= 9 {
				img.SetRGBA(x+dx, y+dy, c)
			}
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func textWidth(s string) int {
	return font.MeasureString(basicfont.Face7x13, s).Round()
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
