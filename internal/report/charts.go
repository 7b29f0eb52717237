package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/crowd.report/internal/scoring"
)

// Series colours: grey for recorded reference positions, red for
// simulated output.
const (
	empiricalColor = "#9e9e9e"
	simulatedColor = "#ff5252"
)

// RenderHTML writes the single-page report for one scored run: the
// objective breakdown, positional error over time with the worst agent
// overlaid, and recorded vs simulated trajectory overlays for the
// worst worstN agents.
func RenderHTML(w io.Writer, res *scoring.Result, m scoring.Metrics, worstN int) error {
	page := components.NewPage()
	page.PageTitle = "Calibration Report"
	page.AddCharts(objectiveBar(res, m), errorLine(res))
	for _, agent := range worstAgents(res, worstN) {
		page.AddCharts(overlayScatter(agent))
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render report page: %w", err)
	}
	return nil
}

// RenderSummaryHTML writes the reduced report page for a stored run
// record: objective breakdown plus per-agent error bars. Stored runs
// keep per-agent summaries but not per-point series, so the time and
// trajectory charts are only available from the result document.
func RenderSummaryHTML(w io.Writer, res *scoring.Result, m scoring.Metrics) error {
	page := components.NewPage()
	page.PageTitle = "Calibration Run Summary"
	page.AddCharts(objectiveBar(res, m), agentMeansBar(res))

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render summary page: %w", err)
	}
	return nil
}

// objectiveBar charts the raw and weighted objective terms side by
// side. The three weighted bars sum to the objective bar.
func objectiveBar(res *scoring.Result, m scoring.Metrics) *charts.Bar {
	x := []string{"Mean", "P95", "Growth", "Weighted Mean", "Weighted P95", "Weighted Growth", "Objective"}
	y := []opts.BarData{
		{Value: m.MeanError},
		{Value: m.Percentile95},
		{Value: m.TimeGrowth},
		{Value: m.WeightedMean},
		{Value: m.WeightedP95},
		{Value: m.WeightedGrowth},
		{Value: m.Objective},
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{
			Title: "Objective Breakdown",
			Subtitle: fmt.Sprintf("experiment=%s agents=%d/%d duration=%.2fs objective=%.4f",
				res.ExperimentID, res.CompletedAgents, res.TotalAgents, res.ExecutionTimeSeconds, m.Objective),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("metrics", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// agentMeansBar charts each agent's mean and max error side by side.
func agentMeansBar(res *scoring.Result) *charts.Bar {
	x := make([]string, 0, len(res.AgentErrors))
	means := make([]opts.BarData, 0, len(res.AgentErrors))
	maxes := make([]opts.BarData, 0, len(res.AgentErrors))
	for _, a := range res.AgentErrors {
		x = append(x, strconv.Itoa(a.AgentID))
		means = append(means, opts.BarData{Value: a.MeanError})
		maxes = append(maxes, opts.BarData{Value: a.MaxError})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Per-Agent Error",
			Subtitle: fmt.Sprintf("agents=%d", len(res.AgentErrors)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Agent", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Error (m)", NameLocation: "middle", NameGap: 30}),
	)
	bar.SetXAxis(x).
		AddSeries("mean", means).
		AddSeries("max", maxes)
	return bar
}

// errorLine charts mean positional error per time index across live
// agents, with the single worst agent's own errors overlaid. Gaps in
// the worst agent's series mark indexes it was not scored at.
func errorLine(res *scoring.Result) *charts.Line {
	series := meanErrorByTime(res)
	axis := make([]string, 0, len(series))
	meanData := make([]opts.LineData, 0, len(series))
	for _, pt := range series {
		axis = append(axis, strconv.Itoa(pt.TimeIndex))
		meanData = append(meanData, opts.LineData{Value: pt.Error})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Positional Error Over Time",
			Subtitle: fmt.Sprintf("mean across live agents; indexes=%d", len(series)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time Index", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Error (m)", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(axis).AddSeries("mean", meanData)

	if worst := worstAgents(res, 1); len(worst) > 0 && len(series) > 0 {
		byIndex := make(map[int]float64, len(worst[0].Errors))
		for _, pt := range worst[0].Errors {
			byIndex[pt.TimeIndex] = pt.Error
		}
		worstData := make([]opts.LineData, 0, len(series))
		for _, pt := range series {
			if v, ok := byIndex[pt.TimeIndex]; ok {
				worstData = append(worstData, opts.LineData{Value: v})
			} else {
				worstData = append(worstData, opts.LineData{})
			}
		}
		line.AddSeries(fmt.Sprintf("agent %d", worst[0].AgentID), worstData)
	}
	return line
}

// overlayScatter charts one agent's recorded path against its
// simulated path on a shared ground-plane extent.
func overlayScatter(agent scoring.AgentErrors) *charts.Scatter {
	empirical := make([]opts.ScatterData, 0, len(agent.Errors))
	simulated := make([]opts.ScatterData, 0, len(agent.Errors))

	minX, maxX := math.Inf(1), math.Inf(-1)
	minZ, maxZ := math.Inf(1), math.Inf(-1)
	for _, pt := range agent.Errors {
		for _, pos := range []scoring.Position{pt.EmpiricalPos, pt.ValidationPos} {
			minX = math.Min(minX, pos.X)
			maxX = math.Max(maxX, pos.X)
			minZ = math.Min(minZ, pos.Z)
			maxZ = math.Max(maxZ, pos.Z)
		}
		empirical = append(empirical, opts.ScatterData{Value: []interface{}{pt.EmpiricalPos.X, pt.EmpiricalPos.Z}})
		simulated = append(simulated, opts.ScatterData{Value: []interface{}{pt.ValidationPos.X, pt.ValidationPos.Z}})
	}

	// Pad the extent so edge points stay visible.
	pad := 0.05 * math.Max(maxX-minX, maxZ-minZ)
	if len(agent.Errors) == 0 || pad == 0 {
		minX, maxX, minZ, maxZ = 0, 0, 0, 0
		pad = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "700px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Agent %d Trajectory", agent.AgentID),
			Subtitle: fmt.Sprintf("mean=%.3fm max=%.3fm points=%d", agent.MeanError, agent.MaxError, len(agent.Errors)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: minX - pad, Max: maxX + pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minZ - pad, Max: maxZ + pad, Name: "Z (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("recorded", empirical,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: empiricalColor}))
	scatter.AddSeries("simulated", simulated,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: simulatedColor}))
	return scatter
}
