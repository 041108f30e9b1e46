package chart

import (
	"bytes"
	"fmt"
	"time"

	"economic-news-bot/internal/types"

	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var impactColors = map[types.Impact]drawing.Color{
	types.ImpactNone:   {R: 158, G: 158, B: 158, A: 255},
	types.ImpactLow:    {R: 244, G: 180, B: 0, A: 255},
	types.ImpactMedium: {R: 255, G: 140, B: 0, A: 255},
	types.ImpactHigh:   {R: 219, G: 68, B: 55, A: 255},
}

// RenderDay renders the day's schedule as a PNG bar chart: one bar per hour
// with a timed event, bar height the event count, bar color the highest
// impact in that hour. Hours are the subscriber's display zone. Days without
// timed events return an error so callers fall back to text.
func RenderDay(day string, events []types.NewsEvent, loc *time.Location) ([]byte, error) {
	counts := make(map[int]int)
	impacts := make(map[int]types.Impact)
	for _, ev := range events {
		if !ev.HasTime {
			continue
		}
		hour := ev.At.In(loc).Hour()
		counts[hour]++
		if ev.Impact > impacts[hour] {
			impacts[hour] = ev.Impact
		}
	}
	if len(counts) == 0 {
		return nil, errors.Errorf("no timed events on %s", day)
	}

	font, err := loadFont()
	if err != nil {
		return nil, err
	}

	maxCount := 0
	var bars []chart.Value
	for hour := 0; hour < 24; hour++ {
		count, ok := counts[hour]
		if !ok {
			continue
		}
		if count > maxCount {
			maxCount = count
		}
		color := impactColors[impacts[hour]]
		bars = append(bars, chart.Value{
			Value: float64(count),
			Label: fmt.Sprintf("%02d:00", hour),
			Style: chart.Style{
				FillColor:   color,
				StrokeColor: color,
			},
		})
	}

	bc := chart.BarChart{
		Title: fmt.Sprintf("Economic calendar %s (%s)", day, loc.String()),
		Font:  font,
		Background: chart.Style{
			Padding: chart.Box{Top: 48, Left: 16, Right: 16, Bottom: 8},
		},
		Width:    1024,
		Height:   512,
		BarWidth: 48,
		XAxis: chart.Style{
			FontSize: 10,
		},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: float64(maxCount) + 1},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := bc.Render(chart.PNG, &buf); err != nil {
		return nil, errors.Wrap(err, "render day chart")
	}
	return buf.Bytes(), nil
}

func loadFont() (*truetype.Font, error) {
	font, err := chart.GetDefaultFont()
	if err != nil {
		return nil, errors.Wrap(err, "load chart font")
	}
	return font, nil
}
