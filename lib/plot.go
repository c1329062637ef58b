package lib

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

func savePlot(p *plot.Plot, width, height vg.Length, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("saving plot %s: %w", path, err)
	}
	return nil
}

// SaveAPBarChart draws one bar per class with a defined AP.
func SaveAPBarChart(path string, title string, scores []ClassScore) error {
	var names []string
	var values plotter.Values
	for _, s := range scores {
		if !s.HasAP {
			continue
		}
		names = append(names, s.Name)
		values = append(values, s.AP)
	}
	if len(values) == 0 {
		return fmt.Errorf("no class with a defined AP for %q", title)
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "AP"
	p.Y.Min, p.Y.Max = 0, 1

	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return err
	}
	bars.Color = plotutil.Color(0)
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(names...)
	return savePlot(p, vg.Length(len(names))*vg.Inch+2*vg.Inch, 6*vg.Inch, path)
}

func SaveThresholdPlot(path string, title string, sweep SweepResult) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Threshold"
	p.Y.Label.Text = "F1"

	data := make(plotter.XYs, len(sweep.Thresholds))
	for i := range data {
		data[i].X = sweep.Thresholds[i]
		data[i].Y = sweep.F1[i]
	}
	if err := plotutil.AddLinePoints(p, "micro F1", data); err != nil {
		return err
	}
	return savePlot(p, 12*vg.Inch, 10*vg.Inch, path)
}

// SaveFeatureScatter draws one series per label, in sorted label order.
func SaveFeatureScatter(path string, title string, points [][2]float64, labels []string) error {
	if len(points) != len(labels) {
		return fmt.Errorf("%d points but %d labels", len(points), len(labels))
	}
	groups := make(map[string]plotter.XYs)
	for i, pt := range points {
		groups[labels[i]] = append(groups[labels[i]], plotter.XY{X: pt[0], Y: pt[1]})
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Component 1"
	p.Y.Label.Text = "Component 2"
	p.Legend.Top = true
	for i, name := range names {
		sc, err := plotter.NewScatter(groups[name])
		if err != nil {
			return err
		}
		sc.GlyphStyle.Color = plotutil.Color(i)
		sc.GlyphStyle.Shape = plotutil.Shape(i)
		sc.GlyphStyle.Radius = vg.Points(2.5)
		p.Add(sc)
		p.Legend.Add(name, sc)
	}
	return savePlot(p, 12*vg.Inch, 8*vg.Inch, path)
}
