package transcoder

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotDiagnostics reads every record in a Binary point file and renders two
// PNGs alongside it: distance-over-time and intensity-over-time, grounded
// on internal/lidar/monitor/gridplotter.go's plot.New/plotter.NewLine/
// vg.Inch save pattern. Returns the two file paths written.
func PlotDiagnostics(binPath string) (distancePNG, intensityPNG string, err error) {
	pr, err := OpenPointFile(binPath)
	if err != nil {
		return "", "", err
	}
	defer pr.Close()

	var distPts, intenPts plotter.XYs
	for {
		rec, nextErr := pr.Next()
		if nextErr == io.EOF {
			break
		}
		if nextErr != nil {
			return "", "", nextErr
		}
		d := rec.Distance
		if rec.Cartesian {
			d = euclidean(rec.X, rec.Y, rec.Z)
		}
		distPts = append(distPts, plotter.XY{X: rec.Timestamp, Y: d})
		intenPts = append(intenPts, plotter.XY{X: rec.Timestamp, Y: float64(rec.Intensity)})
	}

	base := strings.TrimSuffix(filepath.Base(binPath), filepath.Ext(binPath))
	dir := filepath.Dir(binPath)

	distancePNG = filepath.Join(dir, base+"_distance.png")
	if err := saveLinePlot(distancePNG, fmt.Sprintf("%s - Distance over Time", base), "Time (s)", "Distance (m)", distPts); err != nil {
		return "", "", err
	}

	intensityPNG = filepath.Join(dir, base+"_intensity.png")
	if err := saveLinePlot(intensityPNG, fmt.Sprintf("%s - Intensity over Time", base), "Time (s)", "Intensity", intenPts); err != nil {
		return "", "", err
	}

	return distancePNG, intensityPNG, nil
}

func saveLinePlot(path, title, xLabel, yLabel string, pts plotter.XYs) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	if len(pts) > 0 {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Width = vg.Points(1)
		p.Add(line)
	}
	return p.Save(12*vg.Inch, 5*vg.Inch, path)
}
