// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/time/rate"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var ErrUnknownFormat = errors.New("unknown chart format")

// Formats lists the accepted chart formats.
var Formats = []string{"png", "svg", "pdf", "jpg"}

// Over time, rotational, curvature.
var componentColors = [3]color.Color{
	color.RGBA{R: 0xff, A: 0xff},
	color.RGBA{G: 0x80, A: 0xff},
	color.RGBA{B: 0xff, A: 0xff},
}

type ChartOptions struct {
	Width  vg.Length
	Height vg.Length
	// YMax fixes the upper bound of the cumulative chart. Zero autoscales.
	YMax float64
}

func DefaultChartOptions() ChartOptions {
	return ChartOptions{
		Width:  10 * vg.Inch,
		Height: 6 * vg.Inch,
		YMax:   180,
	}
}

// FormatOf returns the chart format matching a file name or format name.
func FormatOf(name string) (string, error) {
	ext := strings.ToLower(name)
	if i := strings.LastIndexByte(ext, '.'); i >= 0 {
		ext = ext[i+1:]
	}
	if ext == "jpeg" {
		ext = "jpg"
	}
	for _, f := range Formats {
		if f == ext {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// stackedArea returns one polygon per layer, each filling the band between
// the running total below it and the running total including it.
func stackedArea(snap Snapshot) ([3]*plotter.Polygon, error) {
	var polys [3]*plotter.Polygon
	n := len(snap.Samples)
	lower := make([]float64, n)
	for layer := 0; layer < 3; layer++ {
		pts := make(plotter.XYs, 0, 2*n)
		upper := make([]float64, n)
		for i, s := range snap.Samples {
			upper[i] = lower[i] + s.Sums()[layer]
			pts = append(pts, plotter.XY{X: s.Time, Y: upper[i]})
		}
		for i := n - 1; i >= 0; i-- {
			pts = append(pts, plotter.XY{X: snap.Samples[i].Time, Y: lower[i]})
		}
		poly, err := plotter.NewPolygon(pts)
		if err != nil {
			return polys, fmt.Errorf("unable to build area for layer %d: %w", layer, err)
		}
		poly.Color = componentColors[layer]
		poly.LineStyle.Width = 0
		polys[layer] = poly
		lower = upper
	}
	return polys, nil
}

func componentLines(snap Snapshot) ([3]*plotter.Line, error) {
	var lines [3]*plotter.Line
	for c := 0; c < 3; c++ {
		pts := make(plotter.XYs, len(snap.Samples))
		for i, s := range snap.Samples {
			pts[i].X = s.Time
			pts[i].Y = s.Components()[c]
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return lines, fmt.Errorf("unable to build line for component %d: %w", c, err)
		}
		l.Color = componentColors[c]
		l.Width = vg.Points(1)
		lines[c] = l
	}
	return lines, nil
}

func buildPlots(snap Snapshot, labels Labels, opts ChartOptions) (*plot.Plot, *plot.Plot, error) {
	top := plot.New()
	top.Title.Text = labels.Title
	top.Y.Label.Text = labels.AppliedLabel
	top.Y.Min = 0
	if opts.YMax > 0 {
		top.Y.Max = opts.YMax
	}
	top.Legend.Top = true
	top.Legend.Left = true
	top.Add(plotter.NewGrid())

	bottom := plot.New()
	bottom.X.Label.Text = labels.TimeLabel
	bottom.X.Label.Position = draw.PosRight
	bottom.Y.Label.Text = labels.RateLabel
	bottom.Add(plotter.NewGrid())

	if len(snap.Samples) == 0 {
		return top, bottom, nil
	}

	polys, err := stackedArea(snap)
	if err != nil {
		return nil, nil, err
	}
	lines, err := componentLines(snap)
	if err != nil {
		return nil, nil, err
	}
	for i := range polys {
		top.Add(polys[i])
		top.Legend.Add(labels.Components[i], polys[i])
		bottom.Add(lines[i])
	}
	if opts.YMax > 0 {
		// Add resets the range to the data; keep the fixed bound.
		top.Y.Min, top.Y.Max = 0, opts.YMax
	}
	// Both panels share the time axis.
	bottom.X.Min, bottom.X.Max = top.X.Min, top.X.Max
	return top, bottom, nil
}

// RenderChart draws the cumulative chart above the per-second chart and
// writes the image to w in the given format.
func RenderChart(w io.Writer, snap Snapshot, labels Labels, opts ChartOptions, format string) error {
	format, err := FormatOf(format)
	if err != nil {
		return err
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		d := DefaultChartOptions()
		opts.Width, opts.Height = d.Width, d.Height
	}

	top, bottom, err := buildPlots(snap, labels, opts)
	if err != nil {
		return err
	}

	c, err := draw.NewFormattedCanvas(opts.Width, opts.Height, format)
	if err != nil {
		return fmt.Errorf("unable to create %s canvas: %w", format, err)
	}
	tiles := draw.Tiles{
		Rows:      2,
		Cols:      1,
		PadTop:    vg.Points(4),
		PadBottom: vg.Points(4),
		PadLeft:   vg.Points(4),
		PadRight:  vg.Points(8),
		PadY:      vg.Points(12),
	}
	canvases := plot.Align([][]*plot.Plot{{top}, {bottom}}, tiles, draw.New(c))
	top.Draw(canvases[0][0])
	bottom.Draw(canvases[1][0])

	if _, err := c.WriteTo(w); err != nil {
		return fmt.Errorf("unable to write chart: %w", err)
	}
	return nil
}

type cacheKey struct {
	format string
	lang   language.Tag
}

type cachedChart struct {
	version uint64
	data    []byte
}

// Renderer renders a live Series, caching the last image per format and
// language. Renders are throttled: when the limiter has no token left the
// previous image is served even if the series moved on.
type Renderer struct {
	series  *Series
	opts    ChartOptions
	limiter *rate.Limiter

	mu    sync.Mutex
	cache map[cacheKey]cachedChart
}

// NewRenderer returns a renderer allowing perSecond renders per second.
// A non positive rate disables throttling.
func NewRenderer(s *Series, opts ChartOptions, perSecond float64) *Renderer {
	lim := rate.NewLimiter(rate.Inf, 0)
	if perSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return &Renderer{
		series:  s,
		opts:    opts,
		limiter: lim,
		cache:   make(map[cacheKey]cachedChart),
	}
}

// Render returns the chart image and the series version it shows.
func (r *Renderer) Render(format string, labels Labels) ([]byte, uint64, error) {
	format, err := FormatOf(format)
	if err != nil {
		return nil, 0, err
	}
	key := cacheKey{format: format, lang: labels.Lang}

	r.mu.Lock()
	defer r.mu.Unlock()

	cached, ok := r.cache[key]
	if ok && cached.version == r.series.Version() {
		return cached.data, cached.version, nil
	}
	if allowed := r.limiter.Allow(); ok && !allowed {
		return cached.data, cached.version, nil
	}

	snap := r.series.Snapshot()
	start := time.Now()
	var buf bytes.Buffer
	if err := RenderChart(&buf, snap, labels, r.opts, format); err != nil {
		return nil, 0, err
	}
	renderDuration.WithLabelValues(format).Observe(time.Since(start).Seconds())

	r.cache[key] = cachedChart{version: snap.Version, data: buf.Bytes()}
	return buf.Bytes(), snap.Version, nil
}
