// Package mapview exporta o mapa como imagem PNG (gonum/plot) e como página
// HTML interativa (go-echarts).
package mapview

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"rover_monitor/internal/models"
	"rover_monitor/internal/render"
	"rover_monitor/internal/spatial"
)

// Cor usada para a trilha (laranja)
var trailColor = color.RGBA{R: 0xFF, G: 0xA5, B: 0x00, A: 0xFF}

var palette = map[models.Color]color.RGBA{
	models.NoColor: {R: 0x80, G: 0x80, B: 0x80, A: 0xFF},
	models.Black:   {R: 0x00, G: 0x00, B: 0x00, A: 0xFF},
	models.White:   {R: 0xE0, G: 0xE0, B: 0xE0, A: 0xFF},
	models.Green:   {R: 0x2E, G: 0xA0, B: 0x43, A: 0xFF},
	models.Red:     {R: 0xD7, G: 0x30, B: 0x27, A: 0xFF},
	models.Blue:    {R: 0x1F, G: 0x5F, B: 0xD0, A: 0xFF},
}

// ColorOf retorna a cor RGBA para o código do sensor
func ColorOf(c models.Color) color.RGBA {
	if rgba, ok := palette[c]; ok {
		return rgba
	}
	return palette[models.NoColor]
}

func hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// groupByColor separa os obstáculos por cor, em ordem estável
func groupByColor(obstacles []models.ObstacleEntry) ([]models.Color, map[models.Color][]models.ObstacleEntry) {
	groups := make(map[models.Color][]models.ObstacleEntry)
	for _, o := range obstacles {
		groups[o.Obstacle.Color] = append(groups[o.Obstacle.Color], o)
	}
	keys := make([]models.Color, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, groups
}

// WritePNG desenha o snapshot como gráfico de dispersão
func WritePNG(w io.Writer, snap spatial.Snapshot, width, height vg.Length) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Mapa do rover (seq %d)", snap.Seq)
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"
	p.Add(plotter.NewGrid())

	b := render.ComputeBounds(snap)
	p.X.Min, p.X.Max = b.MinX, b.MaxX
	p.Y.Min, p.Y.Max = b.MinY, b.MaxY

	if len(snap.Trail) > 0 {
		pts := make(plotter.XYs, len(snap.Trail))
		for i, t := range snap.Trail {
			pts[i] = plotter.XY{X: t.X, Y: t.Y}
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("erro ao criar série da trilha: %w", err)
		}
		s.GlyphStyle.Color = trailColor
		s.GlyphStyle.Radius = vg.Points(3)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)
		p.Legend.Add("trilha", s)
	}

	keys, groups := groupByColor(snap.Obstacles)
	for _, c := range keys {
		entries := groups[c]
		pts := make(plotter.XYs, len(entries))
		for i, o := range entries {
			pts[i] = plotter.XY{X: o.Position.X, Y: o.Position.Y}
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("erro ao criar série de obstáculos: %w", err)
		}
		s.GlyphStyle.Color = ColorOf(c)
		s.GlyphStyle.Radius = vg.Points(5)
		s.GlyphStyle.Shape = draw.BoxGlyph{}
		p.Add(s)
		p.Legend.Add("obstáculo "+c.String(), s)
	}

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("erro ao preparar PNG: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("erro ao escrever PNG: %w", err)
	}
	return nil
}

// RenderHTML gera uma página com o mapa interativo
func RenderHTML(w io.Writer, snap spatial.Snapshot, assetsHost string) error {
	b := render.ComputeBounds(snap)

	initOpts := opts.Initialization{PageTitle: "Rover Map", Width: "900px", Height: "900px"}
	if assetsHost != "" {
		initOpts.AssetsHost = assetsHost
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{
			Title:    "Mapa do rover",
			Subtitle: fmt.Sprintf("seq=%d trilha=%d obstáculos=%d", snap.Seq, len(snap.Trail), len(snap.Obstacles)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: b.MinX, Max: b.MaxX, Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: b.MinY, Max: b.MaxY, Name: "Y", NameLocation: "middle", NameGap: 30}),
	)

	trail := make([]opts.ScatterData, 0, len(snap.Trail))
	for _, t := range snap.Trail {
		trail = append(trail, opts.ScatterData{Value: []interface{}{t.X, t.Y}})
	}
	scatter.AddSeries("trilha", trail,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: hex(trailColor)}),
	)

	keys, groups := groupByColor(snap.Obstacles)
	for _, c := range keys {
		entries := groups[c]
		data := make([]opts.ScatterData, 0, len(entries))
		for _, o := range entries {
			data = append(data, opts.ScatterData{
				Name:   o.Obstacle.Type.String(),
				Value:  []interface{}{o.Position.X, o.Position.Y},
				Symbol: "rect",
			})
		}
		scatter.AddSeries("obstáculo "+c.String(), data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hex(ColorOf(c))}),
		)
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return fmt.Errorf("erro ao renderizar HTML: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
