// Package plot draws a trimmed ECG together with the reference velocity.
package plot

import (
	"bytes"
	"fmt"
	"io"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/himanishpuri/EKGSync/pkg/models"
)

const (
	DefaultWidth  = 1600
	DefaultHeight = 600
)

// Options controls the rendered image.
type Options struct {
	Title  string
	Width  int
	Height int
}

func (o *Options) setDefaults() {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Title == "" {
		o.Title = "ECG vs reference velocity"
	}
}

// Render writes a PNG with the ECG on the primary Y axis and, when tl and
// velocity are given, the reference velocity on the secondary axis. The X
// axis is seconds since the first ECG sample. With an absolute timeline the
// velocity is placed at its true offset from the ECG, otherwise it starts at
// zero.
func Render(w io.Writer, samples []models.Sample, velocity []float64, tl models.SyntheticTimeline, opts Options) error {
	if len(samples) == 0 {
		return fmt.Errorf("%w: nothing to plot", models.ErrEmptyResult)
	}
	opts.setDefaults()

	t0 := samples[0].TimestampSeconds
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = s.TimestampSeconds - t0
		ys[i] = s.Value
	}
	xs, ys = padSingle(xs, ys)

	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    "ECG",
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeColor: chart.ColorRed, StrokeWidth: 1},
		},
	}

	if len(velocity) > 0 && len(velocity) == len(tl.RelativeSeconds) {
		vx := make([]float64, len(velocity))
		for i := range velocity {
			if tl.HasAbsolute() {
				vx[i] = tl.AbsoluteSeconds[i] - t0
			} else {
				vx[i] = tl.RelativeSeconds[i]
			}
		}
		vy := append([]float64(nil), velocity...)
		vx, vy = padSingle(vx, vy)
		series = append(series, chart.ContinuousSeries{
			Name:    "Velocity",
			XValues: vx,
			YValues: vy,
			YAxis:   chart.YAxisSecondary,
			Style:   chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 1.5},
		})
	}

	ch := chart.Chart{
		Title:      opts.Title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{Name: "t (s)"},
		YAxis:      chart.YAxis{Name: "ECG"},
		Series:     series,
	}
	if len(series) > 1 {
		ch.YAxisSecondary = chart.YAxis{Name: "velocity (a.u.)"}
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// padSingle duplicates a lone point so the chart has a non-zero X range.
func padSingle(xs, ys []float64) ([]float64, []float64) {
	if len(xs) != 1 {
		return xs, ys
	}
	return []float64{xs[0], xs[0] + 1}, []float64{ys[0], ys[0]}
}
