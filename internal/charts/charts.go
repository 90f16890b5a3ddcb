// Package charts renders console charts to SVG with go-chart and keeps a
// per-session registry so a refreshed chart replaces, and disposes, the
// instance previously bound to the same name.
package charts

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Errors returned by Render.
var (
	ErrNoData   = errors.New("charts: no data")
	ErrDisposed = errors.New("charts: chart disposed")
)

// Kind selects the chart type.
type Kind string

const (
	KindDonut      Kind = "donut"
	KindBar        Kind = "bar"
	KindGroupedBar Kind = "grouped"
	KindLine       Kind = "line"
)

// Series is one named row of values aligned with Dataset.Labels.
type Series struct {
	Name   string
	Values []float64
}

// Dataset is the input to a chart. Donut and bar charts use the first series
// only; grouped bars draw every series side by side per label, the second and
// later series on the right axis; line charts draw every series.
type Dataset struct {
	Title  string
	Labels []string
	Series []Series
}

// Chart is a renderable chart instance.
type Chart interface {
	Render(Dataset) error
	SVG() []byte
	Dispose()
}

// Options sizes a chart.
type Options struct {
	Width  int
	Height int
}

// palette follows the console's badge colors.
var palette = []drawing.Color{
	drawing.ColorFromHex("0d6efd"),
	drawing.ColorFromHex("198754"),
	drawing.ColorFromHex("ffc107"),
	drawing.ColorFromHex("dc3545"),
	drawing.ColorFromHex("0dcaf0"),
	drawing.ColorFromHex("6f42c1"),
	drawing.ColorFromHex("fd7e14"),
	drawing.ColorFromHex("20c997"),
}

func color(i int) drawing.Color { return palette[i%len(palette)] }

// New returns an empty chart of the given kind.
func New(kind Kind, opts Options) (Chart, error) {
	switch kind {
	case KindDonut, KindBar, KindGroupedBar, KindLine:
	default:
		return nil, fmt.Errorf("charts: unknown kind %q", kind)
	}
	if opts.Width <= 0 {
		opts.Width = 640
	}
	if opts.Height <= 0 {
		opts.Height = 300
	}
	return &svgChart{kind: kind, opts: opts}, nil
}

type svgChart struct {
	kind Kind
	opts Options

	mu       sync.Mutex
	svg      []byte
	disposed bool
}

func (c *svgChart) Render(ds Dataset) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	if len(ds.Labels) == 0 || len(ds.Series) == 0 || allZero(ds.Series) {
		return ErrNoData
	}
	if (c.kind == KindDonut || c.kind == KindBar) && allZero(ds.Series[:1]) {
		return ErrNoData
	}

	var buf bytes.Buffer
	var err error
	switch c.kind {
	case KindDonut:
		err = c.donut(ds).Render(chart.SVG, &buf)
	case KindBar:
		err = c.bar(ds).Render(chart.SVG, &buf)
	case KindGroupedBar:
		err = c.grouped(ds).Render(chart.SVG, &buf)
	case KindLine:
		err = c.line(ds).Render(chart.SVG, &buf)
	}
	if err != nil {
		return fmt.Errorf("rendering %s chart: %w", c.kind, err)
	}
	c.svg = buf.Bytes()
	return nil
}

func (c *svgChart) SVG() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.svg
}

func (c *svgChart) Dispose() {
	c.mu.Lock()
	c.disposed = true
	c.svg = nil
	c.mu.Unlock()
}

func allZero(series []Series) bool {
	for _, s := range series {
		for _, v := range s.Values {
			if v != 0 {
				return false
			}
		}
	}
	return true
}

func valueAt(s Series, i int) float64 {
	if i < len(s.Values) {
		return s.Values[i]
	}
	return 0
}

func (c *svgChart) donut(ds Dataset) chart.DonutChart {
	values := make([]chart.Value, 0, len(ds.Labels))
	for i, label := range ds.Labels {
		v := valueAt(ds.Series[0], i)
		if v <= 0 {
			continue
		}
		values = append(values, chart.Value{
			Label: label,
			Value: v,
			Style: chart.Style{FillColor: color(i), StrokeColor: drawing.ColorWhite},
		})
	}
	return chart.DonutChart{
		Title:  ds.Title,
		Width:  c.opts.Width,
		Height: c.opts.Height,
		Values: values,
	}
}

func yRange(peak float64) *chart.ContinuousRange {
	if peak <= 0 {
		return &chart.ContinuousRange{Min: 0, Max: 1}
	}
	return &chart.ContinuousRange{Min: 0, Max: peak * 1.1}
}

func (c *svgChart) bar(ds Dataset) chart.BarChart {
	bars := make([]chart.Value, 0, len(ds.Labels))
	var peak float64
	for i, label := range ds.Labels {
		v := valueAt(ds.Series[0], i)
		if v > peak {
			peak = v
		}
		bars = append(bars, chart.Value{
			Label: label,
			Value: v,
			Style: chart.Style{FillColor: color(0), StrokeColor: color(0)},
		})
	}
	return chart.BarChart{
		Title:    ds.Title,
		Width:    c.opts.Width,
		Height:   c.opts.Height,
		BarWidth: barWidth(c.opts.Width, len(bars)),
		YAxis:    chart.YAxis{Range: yRange(peak)},
		Bars:     bars,
	}
}

func barWidth(width, n int) int {
	if n == 0 {
		return 40
	}
	w := width / (n * 2)
	switch {
	case w < 8:
		return 8
	case w > 60:
		return 60
	}
	return w
}

// groupTicks labels each slot and pads half a slot on both sides so edge
// bars are not clipped and a single label still spans a range.
func groupTicks(labels []string) []chart.Tick {
	n := len(labels)
	ticks := make([]chart.Tick, 0, n+2)
	ticks = append(ticks, chart.Tick{Value: -0.5})
	for i, label := range labels {
		ticks = append(ticks, chart.Tick{Value: float64(i), Label: label})
	}
	return append(ticks, chart.Tick{Value: float64(n) - 0.5})
}

func (c *svgChart) grouped(ds Dataset) chart.Chart {
	n := len(ds.Labels)
	var peak, peakAlt float64
	series := make([]chart.Series, 0, len(ds.Series))
	for j, s := range ds.Series {
		values := make([]float64, n)
		for i := range values {
			values[i] = valueAt(s, i)
		}
		axis := chart.YAxisPrimary
		if j > 0 {
			axis = chart.YAxisSecondary
		}
		for _, v := range values {
			if axis == chart.YAxisPrimary && v > peak {
				peak = v
			}
			if axis == chart.YAxisSecondary && v > peakAlt {
				peakAlt = v
			}
		}
		series = append(series, barSeries{
			name:   s.Name,
			values: values,
			slot:   j,
			slots:  len(ds.Series),
			axis:   axis,
			style:  chart.Style{FillColor: color(j), StrokeColor: color(j), StrokeWidth: 1},
		})
	}

	gc := chart.Chart{
		Title:          ds.Title,
		Width:          c.opts.Width,
		Height:         c.opts.Height,
		Background:     chart.Style{Padding: chart.Box{Top: 20, Left: 16, Right: 12, Bottom: 12}},
		XAxis:          chart.XAxis{Ticks: groupTicks(ds.Labels)},
		YAxis:          chart.YAxis{Range: yRange(peak)},
		YAxisSecondary: chart.YAxis{Range: yRange(peakAlt)},
		Series:         series,
	}
	if len(series) > 1 {
		gc.Elements = []chart.Renderable{chart.Legend(&gc)}
	}
	return gc
}

// barSeries draws one metric of a grouped bar chart. Bars keep their absolute
// height on the series' axis; slot places the bar within its label's group.
type barSeries struct {
	name   string
	values []float64
	slot   int
	slots  int
	axis   chart.YAxisType
	style  chart.Style
}

func (b barSeries) GetName() string            { return b.name }
func (b barSeries) GetYAxis() chart.YAxisType { return b.axis }
func (b barSeries) GetStyle() chart.Style      { return b.style }
func (b barSeries) Len() int                   { return len(b.values) }

func (b barSeries) GetValues(i int) (float64, float64) {
	return float64(i), b.values[i]
}

func (b barSeries) Validate() error {
	if len(b.values) == 0 {
		return ErrNoData
	}
	return nil
}

func (b barSeries) Render(r chart.Renderer, canvas chart.Box, xr, yr chart.Range, defaults chart.Style) {
	style := b.style.InheritFrom(defaults)
	for _, box := range b.boxes(canvas, xr, yr) {
		chart.Draw.Box(r, box, style)
	}
}

// boxes lays out one bar per value. A label's slot is 80% filled, split
// evenly between the series.
func (b barSeries) boxes(canvas chart.Box, xr, yr chart.Range) []chart.Box {
	slots := max(b.slots, 1)
	unit := float64(xr.GetDomain()) / xr.GetDelta()
	group := unit * 0.8
	width := max(int(group/float64(slots)), 1)
	base := canvas.Bottom - yr.Translate(0)

	out := make([]chart.Box, 0, len(b.values))
	for i, v := range b.values {
		left := canvas.Left + xr.Translate(float64(i)) - int(group/2) + b.slot*width
		out = append(out, chart.Box{
			Top:    canvas.Bottom - yr.Translate(v),
			Left:   left,
			Right:  left + width,
			Bottom: base,
		})
	}
	return out
}

func (c *svgChart) line(ds Dataset) chart.Chart {
	n := len(ds.Labels)
	xs := make([]float64, n)
	ticks := make([]chart.Tick, n)
	for i, label := range ds.Labels {
		xs[i] = float64(i)
		ticks[i] = chart.Tick{Value: float64(i), Label: label}
	}

	var peak float64
	series := make([]chart.Series, 0, len(ds.Series))
	for j, s := range ds.Series {
		ys := make([]float64, n)
		for i := range ys {
			ys[i] = valueAt(s, i)
			if ys[i] > peak {
				peak = ys[i]
			}
		}
		sxs := xs
		// A continuous series needs two points.
		if n == 1 {
			sxs = []float64{0, 1}
			ys = []float64{ys[0], ys[0]}
		}
		series = append(series, chart.ContinuousSeries{
			Name:    s.Name,
			XValues: sxs,
			YValues: ys,
			Style:   chart.Style{StrokeColor: color(j), StrokeWidth: 2, DotColor: color(j), DotWidth: 3},
		})
	}

	// The axis range follows the ticks; one point needs a second, blank tick.
	if n == 1 {
		ticks = append(ticks, chart.Tick{Value: 1})
	}
	lc := chart.Chart{
		Title:      ds.Title,
		Width:      c.opts.Width,
		Height:     c.opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 16, Right: 12, Bottom: 12}},
		XAxis:      chart.XAxis{Ticks: ticks},
		YAxis:      chart.YAxis{Range: yRange(peak)},
		Series:     series,
	}
	if len(series) > 1 {
		lc.Elements = []chart.Renderable{chart.Legend(&lc)}
	}
	return lc
}
