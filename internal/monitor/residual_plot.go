package monitor

import (
	"errors"
	"fmt"
	"image/color"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/wayline-gg/wayline/internal/worldmap"
)

// handleResidualPlot renders the per-point residuals as a static PNG so they
// can be attached to an issue or diffed across calibration edits without a
// browser. Same data as /charts/residuals.
// Query params:
//   - map (required)
func (ws *WebServer) handleResidualPlot(w http.ResponseWriter, r *http.Request) {
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

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s calibration residuals (%s fit)", id, report.Mode)
	p.X.Label.Text = "Calibration Point"
	p.Y.Label.Text = "Residual (px)"

	resPts := make(plotter.XYs, 0, len(report.PointErrors))
	for i, e := range report.PointErrors {
		resPts = append(resPts, plotter.XY{X: float64(i + 1), Y: e})
	}

	residuals, err := plotter.NewScatter(resPts)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("build scatter: %v", err))
		return
	}
	residuals.GlyphStyle.Radius = vg.Points(3)
	residuals.GlyphStyle.Color = color.RGBA{R: 255, G: 82, B: 82, A: 255}

	// Dashed reference line at the RMS, spanning the full point range.
	rmsLine, err := plotter.NewLine(plotter.XYs{
		{X: 0.5, Y: report.RMS},
		{X: float64(len(report.PointErrors)) + 0.5, Y: report.RMS},
	})
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("build line: %v", err))
		return
	}
	rmsLine.Color = color.RGBA{R: 158, G: 158, B: 158, A: 255}
	rmsLine.Width = vg.Points(1)
	rmsLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(residuals, rmsLine)
	p.Legend.Add("residual", residuals)
	p.Legend.Add("rms", rmsLine)
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render plot: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = wt.WriteTo(w)
}
