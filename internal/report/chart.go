// Package report renders the daily time series as a PNG line chart.
package report

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/talgya/malaria-world/internal/engine"
)

// ErrTooFewSamples is returned when there is not yet a line to draw.
var ErrTooFewSamples = errors.New("report: need at least two daily samples")

type line struct {
	name  string
	color drawing.Color
	value func(engine.Sample) int
}

var lines = []line{
	{"Humans susceptible", chart.ColorBlue, func(s engine.Sample) int { return s.Humans.Susceptible }},
	{"Humans exposed", drawing.Color{R: 255, G: 165, B: 0, A: 255}, func(s engine.Sample) int { return s.Humans.Exposed }},
	{"Humans infected", chart.ColorRed, func(s engine.Sample) int { return s.Humans.Infected }},
	{"Humans recovered", chart.ColorGreen, func(s engine.Sample) int { return s.Humans.Recovered }},
	{"Adult mosquitoes", chart.ColorBlack, func(s engine.Sample) int { return s.AdultMosquitoes }},
	{"Infected mosquitoes", drawing.Color{R: 128, G: 0, B: 128, A: 255}, func(s engine.Sample) int { return s.Mosquitoes.Infected }},
}

// RenderSEIR draws the human SEIR curves and the adult and infected
// mosquito counts against simulation day.
func RenderSEIR(w io.Writer, history []engine.Sample) error {
	if len(history) < 2 {
		return ErrTooFewSamples
	}

	days := make([]float64, len(history))
	for i, s := range history {
		days[i] = float64(s.Day)
	}

	yMax := 1.0
	series := make([]chart.Series, 0, len(lines))
	for _, l := range lines {
		ys := make([]float64, len(history))
		for i, s := range history {
			ys[i] = float64(l.value(s))
			if ys[i] > yMax {
				yMax = ys[i]
			}
		}
		series = append(series, chart.ContinuousSeries{
			Name:    l.name,
			XValues: days,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: l.color,
				StrokeWidth: 2.0,
			},
		})
	}

	xMax := days[len(days)-1]
	if xMax <= days[0] {
		xMax = days[0] + 1
	}

	graph := chart.Chart{
		Width:  1024,
		Height: 512,
		Background: chart.Style{
			Padding: chart.Box{Top: 20, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:  "Day",
			Style: chart.Style{FontSize: 10.0},
			Range: &chart.ContinuousRange{Min: days[0], Max: xMax},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%d", int(v.(float64)))
			},
		},
		YAxis: chart.YAxis{
			Name:  "Agents",
			Style: chart.Style{FontSize: 10.0},
			Range: &chart.ContinuousRange{Min: 0, Max: yMax * 1.05},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%d", int(v.(float64)))
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.LegendLeft(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// WriteSEIR renders the chart to a file at path.
func WriteSEIR(path string, history []engine.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart: %w", err)
	}
	if err := RenderSEIR(f, history); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
