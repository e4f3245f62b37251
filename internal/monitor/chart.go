package monitor

import (
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// handleCapturesChart renders a bar chart of good/null point counts per
// recent capture run, grounded on internal/lidar/monitor/echarts_handlers.go's
// charts.NewScatter/SetGlobalOptions/Render-to-ResponseWriter idiom.
func (s *Server) handleCapturesChart(w http.ResponseWriter, r *http.Request) {
	if s.inventory == nil {
		s.writeJSONError(w, http.StatusNotFound, "no inventory database configured")
		return
	}
	runs, err := s.inventory.RecentCaptureRuns(20)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	labels := make([]string, 0, len(runs))
	good := make([]opts.BarData, 0, len(runs))
	null := make([]opts.BarData, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- { // oldest first, matches a time-series read left to right
		run := runs[i]
		labels = append(labels, run.RunID[:8])
		good = append(good, opts.BarData{Value: run.GoodPoints})
		null = append(null, opts.BarData{Value: run.NullPoints})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Capture run point counts", Theme: "dark"}),
		charts.WithTitleOpts(opts.Title{Title: "Recent capture runs", Subtitle: "good vs null point counts"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "run"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "points"}),
	)
	bar.SetXAxis(labels).
		AddSeries("good", good).
		AddSeries("null", null)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := bar.Render(w); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}
