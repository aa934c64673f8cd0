package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"
)

// Bar is one labelled value in a bar chart.
type Bar struct {
	Label string
	Value float64
}

var ErrNoData = errors.New("no data to chart")

const (
	barWidth   = 36
	barSpacing = 18
)

// BarChartPNG renders bars as a PNG image.
func BarChartPNG(w io.Writer, title string, bars []Bar) error {
	if len(bars) == 0 {
		return ErrNoData
	}

	values := make([]chart.Value, len(bars))
	maxValue := 0.0
	for i, b := range bars {
		values[i] = chart.Value{Label: b.Label, Value: b.Value}
		if b.Value > maxValue {
			maxValue = b.Value
		}
	}
	top := maxValue * 1.15
	if top < 1 {
		top = 1
	}

	width := len(bars)*(barWidth+barSpacing) + 160
	if width < 640 {
		width = 640
	}

	graph := chart.BarChart{
		Title:      title,
		Width:      width,
		Height:     420,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		Background: chart.Style{Padding: chart.Box{Top: 48, Left: 16, Right: 16, Bottom: 16}},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: top},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
		},
		Bars: values,
	}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
