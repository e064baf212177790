// Package report summarizes calibration quality as tables and plots.
package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/golang/geo/r2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/calibration"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage/transform"
)

// View is the reprojection residual of every corner of one observation.
type View struct {
	Source    int
	Residuals []r2.Point
}

// Mean returns the mean residual length.
func (v View) Mean() float64 {
	return lo.SumBy(v.Residuals, func(r r2.Point) float64 { return r.Norm() }) / float64(len(v.Residuals))
}

// Max returns the largest residual length.
func (v View) Max() float64 {
	return lo.Max(lo.Map(v.Residuals, func(r r2.Point, _ int) float64 { return r.Norm() }))
}

// Residuals returns detected minus reprojected corners for every observation.
func Residuals(model *transform.PinholeCameraModel, poses []transform.Pose, observations []calibration.Observation) ([]View, error) {
	if len(poses) != len(observations) {
		return nil, errors.Errorf("have %d poses for %d observations", len(poses), len(observations))
	}
	views := make([]View, len(observations))
	for i, obs := range observations {
		projected := calibration.ProjectPoints(obs.Pattern, poses[i], model)
		views[i] = View{
			Source: obs.Source,
			Residuals: lo.Map(obs.Image, func(p r2.Point, k int) r2.Point {
				return p.Sub(projected[k])
			}),
		}
	}
	return views, nil
}

// Summary holds statistics of per-view mean reprojection errors, in pixels.
type Summary struct {
	Views  int
	Mean   float64
	Median float64
	P95    float64
	Max    float64
}

// Summarize computes the statistics of perView.
func Summarize(perView []float64) (Summary, error) {
	data := stats.LoadRawData(perView)
	mean, err := data.Mean()
	if err != nil {
		return Summary{}, err
	}
	median, err := data.Median()
	if err != nil {
		return Summary{}, err
	}
	p95, err := data.Percentile(95)
	if err != nil {
		return Summary{}, err
	}
	maxErr, err := data.Max()
	if err != nil {
		return Summary{}, err
	}
	return Summary{Views: len(perView), Mean: mean, Median: median, P95: p95, Max: maxErr}, nil
}

// ViewTable renders one row per view with its mean and worst corner error.
func ViewTable(views []View) (string, error) {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Source", "Corners", "Mean (px)", "Max (px)"})
	perView := make([]float64, len(views))
	for i, v := range views {
		perView[i] = v.Mean()
		t.AppendRow(table.Row{i, v.Source, len(v.Residuals), fmt.Sprintf("%.4f", perView[i]), fmt.Sprintf("%.4f", v.Max())})
	}
	s, err := Summarize(perView)
	if err != nil {
		return "", err
	}
	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("mean %.4f", s.Mean), fmt.Sprintf("p95 %.4f", s.P95)})
	return t.Render(), nil
}

// ModelTable renders the parameters of a calibration artifact.
func ModelTable(a *transform.CalibrationArtifact) (string, error) {
	model, err := a.Model()
	if err != nil {
		return "", err
	}
	coeffs := model.DistortionCoefficients()
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Parameter", "Value"})
	t.AppendRows([]table.Row{
		{"id", a.ID},
		{"created", a.CreatedAt.Format("2006-01-02 15:04:05 MST")},
		{"resolution", fmt.Sprintf("%dx%d", model.Width, model.Height)},
		{"fx", model.Fx},
		{"fy", model.Fy},
		{"ppx", model.Ppx},
		{"ppy", model.Ppy},
		{"k1", coeffs[0]},
		{"k2", coeffs[1]},
		{"p1", coeffs[2]},
		{"p2", coeffs[3]},
		{"k3", coeffs[4]},
		{"mean error (px)", a.MeanReprojectionError},
		{"rms error (px)", a.RMSError},
	})
	return t.Render(), nil
}

// WriteResidualPlot saves a PNG with the residual vectors of every corner on the left and the mean
// error of every view on the right.
func WriteResidualPlot(path string, views []View) (err error) {
	if len(views) == 0 {
		return errors.New("no views to plot")
	}

	scatter := plot.New()
	scatter.Title.Text = "Reprojection residuals"
	scatter.X.Label.Text = "dx (px)"
	scatter.Y.Label.Text = "dy (px)"
	scatter.Add(plotter.NewGrid())
	var extent float64
	for i, v := range views {
		pts := make(plotter.XYs, len(v.Residuals))
		for k, r := range v.Residuals {
			pts[k] = plotter.XY{X: r.X, Y: r.Y}
			extent = math.Max(extent, math.Max(math.Abs(r.X), math.Abs(r.Y)))
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		s.GlyphStyle.Color = viewColor(i, len(views))
		s.GlyphStyle.Radius = vg.Points(1.5)
		scatter.Add(s)
	}
	if extent > 0 {
		scatter.X.Min, scatter.X.Max = -extent, extent
		scatter.Y.Min, scatter.Y.Max = -extent, extent
	}

	bars := plot.New()
	bars.Title.Text = "Mean error per view"
	bars.X.Label.Text = "view"
	bars.Y.Label.Text = "px"
	values := make(plotter.Values, len(views))
	for i, v := range views {
		values[i] = v.Mean()
	}
	chart, err := plotter.NewBarChart(values, vg.Points(8))
	if err != nil {
		return err
	}
	chart.Color = color.RGBA{R: 70, G: 110, B: 200, A: 255}
	bars.Add(chart)
	bars.NominalX(lo.Map(views, func(v View, i int) string { return fmt.Sprint(i) })...)
	mean := plotter.NewFunction(func(float64) float64 { return lo.Sum(values) / float64(len(values)) })
	mean.Color = color.RGBA{R: 200, A: 255}
	mean.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	bars.Add(mean)
	bars.Legend.Add("mean", mean)

	img := vgimg.New(14*vg.Inch, 6*vg.Inch)
	dc := draw.New(img)
	plots := [][]*plot.Plot{{scatter, bars}}
	canvases := plot.Align(plots, draw.Tiles{Rows: 1, Cols: 2, PadX: vg.Inch / 4}, dc)
	scatter.Draw(canvases[0][0])
	bars.Draw(canvases[0][1])

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	_, err = vgimg.PngCanvas{Canvas: img}.WriteTo(f)
	return err
}

// viewColor spreads n views around the hue circle.
func viewColor(i, n int) color.Color {
	return colorful.Hsv(360*float64(i)/float64(n), 0.85, 0.9).Clamped()
}
