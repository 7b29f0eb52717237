package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/crowd.report/internal/scoring"
)

// RenderErrorPlot writes a PNG line plot of mean positional error per
// time index with the worst agent overlaid. Same data as the HTML
// error chart, for headless and CI artifact use.
func RenderErrorPlot(path string, res *scoring.Result) error {
	series := meanErrorByTime(res)
	if len(series) == 0 {
		return fmt.Errorf("no scored samples to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Positional Error (%s)", res.ExperimentID)
	p.X.Label.Text = "Time Index"
	p.Y.Label.Text = "Error (m)"

	meanPts := make(plotter.XYs, 0, len(series))
	for _, pt := range series {
		meanPts = append(meanPts, plotter.XY{X: float64(pt.TimeIndex), Y: pt.Error})
	}
	meanLine, err := plotter.NewLine(meanPts)
	if err != nil {
		return fmt.Errorf("mean error line: %w", err)
	}
	meanLine.Color = color.RGBA{R: 49, G: 104, B: 142, A: 255}
	meanLine.Width = vg.Points(1)
	p.Add(meanLine)
	p.Legend.Add("mean", meanLine)

	if worst := worstAgents(res, 1); len(worst) > 0 && len(worst[0].Errors) > 0 {
		agentPts := make(plotter.XYs, 0, len(worst[0].Errors))
		for _, pt := range worst[0].Errors {
			agentPts = append(agentPts, plotter.XY{X: float64(pt.TimeIndex), Y: pt.Error})
		}
		agentLine, err := plotter.NewLine(agentPts)
		if err != nil {
			return fmt.Errorf("worst agent line: %w", err)
		}
		agentLine.Color = color.RGBA{R: 255, G: 82, B: 82, A: 255}
		agentLine.Width = vg.Points(1)
		p.Add(agentLine)
		p.Legend.Add(fmt.Sprintf("agent %d", worst[0].AgentID), agentLine)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save error plot: %w", err)
	}
	return nil
}
