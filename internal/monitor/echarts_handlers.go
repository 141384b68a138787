package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/wayline-gg/wayline/internal/stream"
	"github.com/wayline-gg/wayline/internal/worldmap"
)

// echartsAssetsPrefix is where chart pages load the echarts JS bundle from.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleResidualChart renders a bar chart of per-calibration-point residuals
// for one map. This is a debugging-only endpoint (no auth) to judge whether a
// calibration table needs more or better reference points.
// Query params:
//   - map (required)
func (ws *WebServer) handleResidualChart(w http.ResponseWriter, r *http.Request) {
	id := worldmap.MapID(r.URL.Query().Get("map"))
	if id == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'map' parameter")
		return
	}

	report, err := ws.mapper.Report(id)
	if err != nil {
		if errors.Is(err, worldmap.ErrUnknownMap) {
			ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown map '%s'", id))
			return
		}
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("fit report: %v", err))
		return
	}
	if len(report.PointErrors) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "map has no calibration points")
		return
	}

	x := make([]string, 0, len(report.PointErrors))
	y := make([]opts.BarData, 0, len(report.PointErrors))
	for i, e := range report.PointErrors {
		x = append(x, fmt.Sprintf("p%d", i+1))
		y = append(y, opts.BarData{Value: e})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Calibration Residuals",
			Subtitle: fmt.Sprintf("map=%s mode=%s mean=%.2fpx max=%.2fpx rms=%.2fpx", id, report.Mode, report.Mean, report.Max, report.RMS),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("residual px", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleCalibrationChart renders the calibration targets against where the
// fitted transform actually lands them, as a two-series scatter in pixel
// space. Misfit points stand out as pairs that do not overlap.
// Query params:
//   - map (required)
func (ws *WebServer) handleCalibrationChart(w http.ResponseWriter, r *http.Request) {
	id := worldmap.MapID(r.URL.Query().Get("map"))
	if id == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'map' parameter")
		return
	}

	cfg, ok := ws.registry.Get(id)
	if !ok {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown map '%s'", id))
		return
	}
	if len(cfg.Calibration) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "map has no calibration points")
		return
	}

	transform, err := ws.mapper.Fit(id)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("fit: %v", err))
		return
	}
	report, _ := ws.mapper.Report(id)

	targetPts := make([]opts.ScatterData, 0, len(cfg.Calibration))
	fittedPts := make([]opts.ScatterData, 0, len(cfg.Calibration))
	for _, p := range cfg.Calibration {
		targetPts = append(targetPts, opts.ScatterData{Value: []interface{}{p.PixelX, p.PixelY}})
		px, py := transform.Apply(p.GameX, p.GameZ)
		fittedPts = append(fittedPts, opts.ScatterData{Value: []interface{}{px, py}})
	}

	subtitle := fmt.Sprintf("map=%s mode=%s points=%d max=%.2fpx", id, report.Mode, len(cfg.Calibration), report.Max)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Calibration Fit", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Calibration Fit", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: float64(cfg.WidthPx), Name: "Pixel X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: float64(cfg.HeightPx), Name: "Pixel Y", NameLocation: "middle", NameGap: 30}),
	)

	scatter.AddSeries("target", targetPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#9e9e9e"}))
	scatter.AddSeries("fitted", fittedPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render calibration chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleRouteChart renders one channel's buffered route projected into map
// pixel space, colored by sample order so direction of travel is readable.
// Query params:
//   - channel (required)
//   - map (optional; defaults to the map of the channel's newest point)
//   - max_points (optional; default 8000) to reduce payload size
func (ws *WebServer) handleRouteChart(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channel")
	if channelID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'channel' parameter")
		return
	}

	points, err := ws.streams.Points(channelID)
	if err != nil {
		if errors.Is(err, stream.ErrNoChannel) {
			ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown channel '%s'", channelID))
			return
		}
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("points: %v", err))
		return
	}
	if len(points) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "channel has no points")
		return
	}

	id := worldmap.MapID(r.URL.Query().Get("map"))
	if id == "" {
		id = points[len(points)-1].DisplayMap()
	}
	cfg, ok := ws.registry.Get(id)
	if !ok {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown map '%s'", id))
		return
	}
	transform, err := ws.mapper.Fit(id)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("fit: %v", err))
		return
	}

	maxPoints := 8000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	onMap := make([]int, 0, len(points))
	for i, p := range points {
		if p.DisplayMap() == id {
			onMap = append(onMap, i)
		}
	}
	if len(onMap) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("channel has no points on map '%s'", id))
		return
	}

	// Downsample by stride to stay within maxPoints
	stride := 1
	if len(onMap) > maxPoints {
		stride = int(math.Ceil(float64(len(onMap)) / float64(maxPoints)))
	}

	data := make([]opts.ScatterData, 0, len(onMap)/stride+1)
	for n := 0; n < len(onMap); n += stride {
		p := points[onMap[n]]
		px, py := transform.Apply(p.GlobalX, p.GlobalZ)
		data = append(data, opts.ScatterData{Value: []interface{}{px, py, n}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Channel Route", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Channel Route", Subtitle: fmt.Sprintf("channel=%s map=%s points=%d stride=%d", channelID, id, len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: float64(cfg.WidthPx), Name: "Pixel X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: float64(cfg.HeightPx), Name: "Pixel Y", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(len(onMap)),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)

	scatter.AddSeries("route", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render route chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
