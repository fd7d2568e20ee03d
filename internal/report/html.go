package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/scanmatch/internal/scanmatch"
)

// WriteMetricsHTML renders a page with the per-pair fitness and RMSE, and
// the x/y/yaw of each registered relative motion. Failed pairs are plotted
// as gaps.
func WriteMetricsHTML(w io.Writer, pairs []scanmatch.PairResult) error {
	x := make([]string, len(pairs))
	var (
		fitness = make([]opts.LineData, len(pairs))
		rmse    = make([]opts.LineData, len(pairs))
		tx      = make([]opts.LineData, len(pairs))
		ty      = make([]opts.LineData, len(pairs))
		yaw     = make([]opts.LineData, len(pairs))
		failed  int
	)
	for i, p := range pairs {
		x[i] = strconv.Itoa(p.Index)
		if p.Failed() {
			failed++
			for _, s := range [][]opts.LineData{fitness, rmse, tx, ty, yaw} {
				s[i] = opts.LineData{Value: "-"}
			}
			continue
		}
		pose := p.Result.Pose
		fitness[i] = opts.LineData{Value: p.Result.Fitness}
		rmse[i] = opts.LineData{Value: p.Result.RMSE}
		tx[i] = opts.LineData{Value: pose.TX}
		ty[i] = opts.LineData{Value: pose.TY}
		yaw[i] = opts.LineData{Value: pose.Gamma}
	}
	subtitle := fmt.Sprintf("pairs=%d failed=%d", len(pairs), failed)

	quality := charts.NewLine()
	quality.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Scan matching", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Registration quality", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "pair", NameLocation: "middle", NameGap: 25}),
	)
	quality.SetXAxis(x).
		AddSeries("fitness", fitness).
		AddSeries("rmse (m)", rmse)

	motion := charts.NewLine()
	motion.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Relative motion", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "pair", NameLocation: "middle", NameGap: 25}),
	)
	motion.SetXAxis(x).
		AddSeries("tx (m)", tx).
		AddSeries("ty (m)", ty).
		AddSeries("yaw (rad)", yaw)

	page := components.NewPage()
	page.AddCharts(quality, motion)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render metrics page: %w", err)
	}
	return nil
}
