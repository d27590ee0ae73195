package report

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"fpgranules/internal/models"
)

// PlotSummary saves a bar chart of pct_foci_cell per image. Images without cells are
// drawn as 0. The format follows the file extension of path.
func PlotSummary(rows []models.ImageSummaryRecord, path string) error {
	if len(rows) == 0 {
		return fmt.Errorf("plot summary: no rows")
	}

	values := make(plotter.Values, len(rows))
	names := make([]string, len(rows))
	for i, r := range rows {
		v := r.PctFociCell
		if math.IsNaN(v) {
			v = 0
		}
		values[i] = v
		names[i] = r.FileName
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Cells with granules, prominence %d", rows[0].Prominence)
	p.Y.Label.Text = "pct_foci_cell (%)"
	p.Y.Min = 0
	p.Y.Max = 100

	bars, err := plotter.NewBarChart(values, vg.Points(18))
	if err != nil {
		return fmt.Errorf("plot summary: %w", err)
	}
	bars.Color = color.RGBA{R: 200, G: 40, B: 160, A: 255}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight

	width := vg.Length(math.Max(6, float64(len(rows))*0.4)) * vg.Inch
	if err := p.Save(width, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("plot summary: %w", err)
	}
	return nil
}
